package core

import "github.com/atlasmelt/mapedit/internal/diff"

// OpResult is the outcome of one submitted operation.
//
// Create: OldID is the client's placeholder, NewID the assigned id,
// NewVersion 1. Modify: OldID == NewID, NewVersion the incremented version.
// Delete: NewID and NewVersion are zero when the row was removed; a skipped
// delete (if-unused on a still-referenced node) echoes the surviving id and
// its current version with Skipped set.
type OpResult struct {
	Element    string
	Action     diff.Action
	OldID      int64
	NewID      int64
	NewVersion int64
	Skipped    bool
}

// UploadResult is the per-operation outcome sequence for one upload, in
// submission order.
type UploadResult struct {
	Changeset int64
	Results   []OpResult
}
