package core

import "fmt"

// The engine reports failures with typed errors so the transport layer can
// map each kind to a response without string matching. Every error carries
// enough identity (element name, id, document position) to point the client
// at the offending operation.

// NegotiationError reports an unusable placeholder on a create: a
// non-negative id where a placeholder was required, or a placeholder reused
// within its entity type in the same upload.
type NegotiationError struct {
	Element string
	ID      int64
	Index   int
	Reason  string
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("%s %d (operation %d): %s", e.Element, e.ID, e.Index, e.Reason)
}

// UnresolvedReferenceError reports a way referencing a placeholder node that
// no earlier create in the same upload defines.
type UnresolvedReferenceError struct {
	WayID int64
	Ref   int64
	Index int
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("way %d (operation %d): reference %d does not match any node created in this upload", e.WayID, e.Index, e.Ref)
}

// NotFoundError reports a modify/delete target, way reference, or lookup
// subject that does not exist in the store. Index is -1 outside an upload.
type NotFoundError struct {
	Element string
	ID      int64
	Index   int
}

func (e *NotFoundError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s %d (operation %d): not found", e.Element, e.ID, e.Index)
	}
	return fmt.Sprintf("%s %d: not found", e.Element, e.ID)
}

// ConflictError reports a stale version on a modify or delete.
type ConflictError struct {
	Element  string
	ID       int64
	Index    int
	Supplied int64
	Current  int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %d (operation %d): version mismatch: supplied %d, current %d",
		e.Element, e.ID, e.Index, e.Supplied, e.Current)
}

// IntegrityError reports a delete of a node still referenced by a surviving
// way, submitted without the if-unused flag.
type IntegrityError struct {
	NodeID int64
	Index  int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("node %d (operation %d): still referenced by a way", e.NodeID, e.Index)
}

// ChangesetClosedError reports an upload or close against an already closed
// changeset.
type ChangesetClosedError struct {
	ID int64
}

func (e *ChangesetClosedError) Error() string {
	return fmt.Sprintf("changeset %d is closed", e.ID)
}
