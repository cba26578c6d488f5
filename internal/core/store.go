package core

import (
	"context"
	"time"

	"github.com/atlasmelt/mapedit/internal/diff"
)

// Bounds is a lon/lat bounding box in decimal degrees.
type Bounds struct {
	MinLon, MinLat float64
	MaxLon, MaxLat float64
}

// Extend grows the box to cover the given coordinate.
func (b Bounds) Extend(lon, lat float64) Bounds {
	if lon < b.MinLon {
		b.MinLon = lon
	}
	if lon > b.MaxLon {
		b.MaxLon = lon
	}
	if lat < b.MinLat {
		b.MinLat = lat
	}
	if lat > b.MaxLat {
		b.MaxLat = lat
	}
	return b
}

// BoundsAt returns a degenerate box covering a single coordinate.
func BoundsAt(lon, lat float64) Bounds {
	return Bounds{MinLon: lon, MinLat: lat, MaxLon: lon, MaxLat: lat}
}

// Changeset is the grouping record a batch of edits is filed under.
type Changeset struct {
	ID         int64
	CreatedAt  time.Time
	ClosedAt   *time.Time
	Open       bool
	NumChanges int
	Bounds     *Bounds
	Tags       map[string]string
}

// Tx is the store's transactional surface. One upload runs against exactly
// one Tx; nothing an upload does is visible outside it until the enclosing
// InTx call commits.
type Tx interface {
	ReserveNodeIDs(ctx context.Context, count int) ([]int64, error)
	ReserveWayIDs(ctx context.Context, count int) ([]int64, error)

	LockChangeset(ctx context.Context, id int64) (open, found bool, err error)
	GrowChangeset(ctx context.Context, id int64, edits int, box *Bounds) error

	InsertNode(ctx context.Context, changeset int64, n diff.Node) error
	LockNode(ctx context.Context, id int64) (version int64, found bool, err error)
	UpdateNode(ctx context.Context, changeset int64, n diff.Node) error
	DeleteNode(ctx context.Context, id int64) error
	NodeReferenced(ctx context.Context, id int64) (bool, error)
	MissingNodes(ctx context.Context, ids []int64) ([]int64, error)

	InsertWay(ctx context.Context, changeset int64, w diff.Way) error
	LockWay(ctx context.Context, id int64) (version int64, found bool, err error)
	UpdateWay(ctx context.Context, changeset int64, w diff.Way) error
	DeleteWay(ctx context.Context, id int64) error
}

// Store is the persistence surface the engine runs on. InTx runs fn inside
// one transaction, committing when fn returns nil and rolling back otherwise.
// The read methods report absence as found=false with a nil error.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error

	CreateChangeset(ctx context.Context, tags map[string]string) (int64, error)
	CloseChangeset(ctx context.Context, id int64) (found, wasOpen bool, err error)
	GetChangeset(ctx context.Context, id int64) (cs *Changeset, found bool, err error)

	GetNode(ctx context.Context, id int64) (n *diff.Node, found bool, err error)
	GetNodes(ctx context.Context, ids []int64) ([]diff.Node, error)
	GetWay(ctx context.Context, id int64) (w *diff.Way, found bool, err error)
	NodesInBounds(ctx context.Context, b Bounds) ([]diff.Node, error)
	WaysUsingNodes(ctx context.Context, nodeIDs []int64) ([]diff.Way, error)
}
