// Package diff implements the osmChange edit-document codec: element types,
// the parsed operation sequence, and the parser that produces it.
package diff

import "fmt"

// Node is a point feature. A negative ID is an upload-scoped placeholder;
// a positive ID refers to a stored node.
type Node struct {
	ID      int64
	Lon     float64
	Lat     float64
	Version int64
	Tags    map[string]string
}

// Way is an ordered path over nodes. Refs holds node IDs in path order;
// entries may be placeholders when the nodes are created in the same upload.
type Way struct {
	ID      int64
	Version int64
	Refs    []int64
	Tags    map[string]string
}

// Action is the kind of edit an operation performs.
type Action int

const (
	Create Action = iota
	Modify
	Delete
)

func (a Action) String() string {
	switch a {
	case Create:
		return "create"
	case Modify:
		return "modify"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Operation is one parsed edit. Exactly one of Node or Way is non-nil.
// Index is the element's position in the submitted document, used to keep
// reported outcomes and error messages aligned with what the client sent.
type Operation struct {
	Action   Action
	Index    int
	Node     *Node
	Way      *Way
	IfUnused bool // delete only: skip instead of failing when still referenced
}

// IsWay reports whether the operation targets a way.
func (op Operation) IsWay() bool { return op.Way != nil }

// ElementID returns the ID the client supplied for the operation's element.
func (op Operation) ElementID() int64 {
	if op.Way != nil {
		return op.Way.ID
	}
	return op.Node.ID
}

// ElementName returns "node" or "way".
func (op Operation) ElementName() string {
	if op.Way != nil {
		return "way"
	}
	return "node"
}
