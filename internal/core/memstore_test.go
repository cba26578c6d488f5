package core

import (
	"context"
	"errors"
	"time"

	"github.com/atlasmelt/mapedit/internal/diff"
)

// memStore is an in-memory Store for engine tests. InTx runs against a deep
// copy of the state and publishes it only when fn succeeds, mirroring the
// all-or-nothing behavior of the SQL store.
type memStore struct {
	state memState
}

type memState struct {
	nodes      map[int64]diff.Node
	ways       map[int64]diff.Way
	changesets map[int64]Changeset
	nextNode   int64
	nextWay    int64
	nextCS     int64
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		nodes:      map[int64]diff.Node{},
		ways:       map[int64]diff.Way{},
		changesets: map[int64]Changeset{},
	}}
}

func (s *memStore) clone() memState {
	c := memState{
		nodes:      make(map[int64]diff.Node, len(s.state.nodes)),
		ways:       make(map[int64]diff.Way, len(s.state.ways)),
		changesets: make(map[int64]Changeset, len(s.state.changesets)),
		nextNode:   s.state.nextNode,
		nextWay:    s.state.nextWay,
		nextCS:     s.state.nextCS,
	}
	for id, n := range s.state.nodes {
		c.nodes[id] = copyNode(n)
	}
	for id, w := range s.state.ways {
		c.ways[id] = copyWay(w)
	}
	for id, cs := range s.state.changesets {
		c.changesets[id] = cs
	}
	return c
}

func copyNode(n diff.Node) diff.Node {
	n.Tags = copyTags(n.Tags)
	return n
}

func copyWay(w diff.Way) diff.Way {
	w.Tags = copyTags(w.Tags)
	w.Refs = append([]int64(nil), w.Refs...)
	return w
}

func copyTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

func (s *memStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx := &memTx{state: s.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *memStore) CreateChangeset(ctx context.Context, tags map[string]string) (int64, error) {
	s.state.nextCS++
	id := s.state.nextCS
	s.state.changesets[id] = Changeset{
		ID: id, CreatedAt: time.Now(), Open: true, Tags: copyTags(tags),
	}
	return id, nil
}

func (s *memStore) CloseChangeset(ctx context.Context, id int64) (found, wasOpen bool, err error) {
	cs, ok := s.state.changesets[id]
	if !ok {
		return false, false, nil
	}
	wasOpen = cs.Open
	cs.Open = false
	s.state.changesets[id] = cs
	return true, wasOpen, nil
}

func (s *memStore) GetChangeset(ctx context.Context, id int64) (*Changeset, bool, error) {
	cs, ok := s.state.changesets[id]
	if !ok {
		return nil, false, nil
	}
	return &cs, true, nil
}

func (s *memStore) GetNode(ctx context.Context, id int64) (*diff.Node, bool, error) {
	n, ok := s.state.nodes[id]
	if !ok {
		return nil, false, nil
	}
	n = copyNode(n)
	return &n, true, nil
}

func (s *memStore) GetNodes(ctx context.Context, ids []int64) ([]diff.Node, error) {
	var out []diff.Node
	seen := map[int64]bool{}
	for _, id := range ids {
		if n, ok := s.state.nodes[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, copyNode(n))
		}
	}
	return out, nil
}

func (s *memStore) GetWay(ctx context.Context, id int64) (*diff.Way, bool, error) {
	w, ok := s.state.ways[id]
	if !ok {
		return nil, false, nil
	}
	w = copyWay(w)
	return &w, true, nil
}

func (s *memStore) NodesInBounds(ctx context.Context, b Bounds) ([]diff.Node, error) {
	var out []diff.Node
	for _, n := range s.state.nodes {
		if n.Lon >= b.MinLon && n.Lon <= b.MaxLon && n.Lat >= b.MinLat && n.Lat <= b.MaxLat {
			out = append(out, copyNode(n))
		}
	}
	return out, nil
}

func (s *memStore) WaysUsingNodes(ctx context.Context, nodeIDs []int64) ([]diff.Way, error) {
	wanted := map[int64]bool{}
	for _, id := range nodeIDs {
		wanted[id] = true
	}
	var out []diff.Way
	for _, w := range s.state.ways {
		for _, ref := range w.Refs {
			if wanted[ref] {
				out = append(out, copyWay(w))
				break
			}
		}
	}
	return out, nil
}

// memTx implements Tx over the cloned state.
type memTx struct {
	state memState
}

func (t *memTx) ReserveNodeIDs(ctx context.Context, count int) ([]int64, error) {
	ids := make([]int64, count)
	for i := range ids {
		t.state.nextNode++
		ids[i] = t.state.nextNode
	}
	return ids, nil
}

func (t *memTx) ReserveWayIDs(ctx context.Context, count int) ([]int64, error) {
	ids := make([]int64, count)
	for i := range ids {
		t.state.nextWay++
		ids[i] = t.state.nextWay
	}
	return ids, nil
}

func (t *memTx) LockChangeset(ctx context.Context, id int64) (open, found bool, err error) {
	cs, ok := t.state.changesets[id]
	if !ok {
		return false, false, nil
	}
	return cs.Open, true, nil
}

func (t *memTx) GrowChangeset(ctx context.Context, id int64, edits int, box *Bounds) error {
	cs, ok := t.state.changesets[id]
	if !ok {
		return errors.New("changeset vanished mid-transaction")
	}
	cs.NumChanges += edits
	if box != nil {
		if cs.Bounds == nil {
			b := *box
			cs.Bounds = &b
		} else {
			b := cs.Bounds.Extend(box.MinLon, box.MinLat).Extend(box.MaxLon, box.MaxLat)
			cs.Bounds = &b
		}
	}
	t.state.changesets[id] = cs
	return nil
}

func (t *memTx) InsertNode(ctx context.Context, changeset int64, n diff.Node) error {
	if _, exists := t.state.nodes[n.ID]; exists {
		return errors.New("duplicate node id")
	}
	t.state.nodes[n.ID] = copyNode(n)
	return nil
}

func (t *memTx) LockNode(ctx context.Context, id int64) (int64, bool, error) {
	n, ok := t.state.nodes[id]
	if !ok {
		return 0, false, nil
	}
	return n.Version, true, nil
}

func (t *memTx) UpdateNode(ctx context.Context, changeset int64, n diff.Node) error {
	t.state.nodes[n.ID] = copyNode(n)
	return nil
}

func (t *memTx) DeleteNode(ctx context.Context, id int64) error {
	delete(t.state.nodes, id)
	return nil
}

func (t *memTx) NodeReferenced(ctx context.Context, id int64) (bool, error) {
	for _, w := range t.state.ways {
		for _, ref := range w.Refs {
			if ref == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (t *memTx) MissingNodes(ctx context.Context, ids []int64) ([]int64, error) {
	var missing []int64
	for _, id := range ids {
		if _, ok := t.state.nodes[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (t *memTx) InsertWay(ctx context.Context, changeset int64, w diff.Way) error {
	if _, exists := t.state.ways[w.ID]; exists {
		return errors.New("duplicate way id")
	}
	t.state.ways[w.ID] = copyWay(w)
	return nil
}

func (t *memTx) LockWay(ctx context.Context, id int64) (int64, bool, error) {
	w, ok := t.state.ways[id]
	if !ok {
		return 0, false, nil
	}
	return w.Version, true, nil
}

func (t *memTx) UpdateWay(ctx context.Context, changeset int64, w diff.Way) error {
	t.state.ways[w.ID] = copyWay(w)
	return nil
}

func (t *memTx) DeleteWay(ctx context.Context, id int64) error {
	delete(t.state.ways, id)
	return nil
}
