package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/atlasmelt/mapedit/internal/diff"
)

// apply executes a validated plan against one open transaction. Operations
// run in plan order (creates, modifies, deletes, document order within each
// group); the first failure aborts the whole transaction via the returned
// error.
func apply(ctx context.Context, tx Tx, changesetID int64, p *plan) (*UploadResult, error) {
	open, found, err := tx.LockChangeset(ctx, changesetID)
	if err != nil {
		return nil, fmt.Errorf("lock changeset %d: %w", changesetID, err)
	}
	if !found {
		return nil, &NotFoundError{Element: "changeset", ID: changesetID, Index: -1}
	}
	if !open {
		return nil, &ChangesetClosedError{ID: changesetID}
	}

	nodeIDs, err := tx.ReserveNodeIDs(ctx, len(p.nodeCreates))
	if err != nil {
		return nil, fmt.Errorf("reserve node ids: %w", err)
	}
	wayIDs, err := tx.ReserveWayIDs(ctx, len(p.wayCreates))
	if err != nil {
		return nil, fmt.Errorf("reserve way ids: %w", err)
	}
	oldIDs := p.resolve(nodeIDs, wayIDs)

	type indexed struct {
		pos int // document position, for submission-order reporting
		res OpResult
	}
	results := make([]indexed, 0, len(p.ops))
	var box *Bounds

	touch := func(lon, lat float64) {
		if box == nil {
			b := BoundsAt(lon, lat)
			box = &b
		} else {
			b := box.Extend(lon, lat)
			box = &b
		}
	}

	for off, op := range p.ops {
		var res OpResult

		switch {
		case op.Action == diff.Create && !op.IsWay():
			n := *op.Node
			n.Version = 1
			if err := tx.InsertNode(ctx, changesetID, n); err != nil {
				return nil, fmt.Errorf("insert node %d: %w", n.ID, err)
			}
			touch(n.Lon, n.Lat)
			res = OpResult{Element: "node", Action: op.Action, OldID: oldIDs[off], NewID: n.ID, NewVersion: 1}

		case op.Action == diff.Create && op.IsWay():
			w := *op.Way
			w.Version = 1
			if err := checkWayRefs(ctx, tx, op, nodeIDs, p); err != nil {
				return nil, err
			}
			if err := tx.InsertWay(ctx, changesetID, w); err != nil {
				return nil, fmt.Errorf("insert way %d: %w", w.ID, err)
			}
			res = OpResult{Element: "way", Action: op.Action, OldID: oldIDs[off], NewID: w.ID, NewVersion: 1}

		case op.Action == diff.Modify && !op.IsWay():
			n := *op.Node
			current, err := lockAndCheck(ctx, tx, op, n.ID, n.Version)
			if err != nil {
				return nil, err
			}
			n.Version = current + 1
			if err := tx.UpdateNode(ctx, changesetID, n); err != nil {
				return nil, fmt.Errorf("update node %d: %w", n.ID, err)
			}
			touch(n.Lon, n.Lat)
			res = OpResult{Element: "node", Action: op.Action, OldID: n.ID, NewID: n.ID, NewVersion: n.Version}

		case op.Action == diff.Modify && op.IsWay():
			w := *op.Way
			current, err := lockAndCheck(ctx, tx, op, w.ID, w.Version)
			if err != nil {
				return nil, err
			}
			if err := checkWayRefs(ctx, tx, op, nodeIDs, p); err != nil {
				return nil, err
			}
			w.Version = current + 1
			if err := tx.UpdateWay(ctx, changesetID, w); err != nil {
				return nil, fmt.Errorf("update way %d: %w", w.ID, err)
			}
			res = OpResult{Element: "way", Action: op.Action, OldID: w.ID, NewID: w.ID, NewVersion: w.Version}

		case op.Action == diff.Delete && !op.IsWay():
			n := op.Node
			current, err := lockAndCheck(ctx, tx, op, n.ID, n.Version)
			if err != nil {
				return nil, err
			}
			referenced, err := tx.NodeReferenced(ctx, n.ID)
			if err != nil {
				return nil, fmt.Errorf("check references to node %d: %w", n.ID, err)
			}
			switch {
			case referenced && op.IfUnused:
				// Not an error: the row survives and the outcome says so.
				res = OpResult{Element: "node", Action: op.Action, OldID: n.ID, NewID: n.ID, NewVersion: current, Skipped: true}
			case referenced:
				return nil, &IntegrityError{NodeID: n.ID, Index: op.Index}
			default:
				if err := tx.DeleteNode(ctx, n.ID); err != nil {
					return nil, fmt.Errorf("delete node %d: %w", n.ID, err)
				}
				res = OpResult{Element: "node", Action: op.Action, OldID: n.ID}
			}

		case op.Action == diff.Delete && op.IsWay():
			w := op.Way
			if _, err := lockAndCheck(ctx, tx, op, w.ID, w.Version); err != nil {
				return nil, err
			}
			if err := tx.DeleteWay(ctx, w.ID); err != nil {
				return nil, fmt.Errorf("delete way %d: %w", w.ID, err)
			}
			res = OpResult{Element: "way", Action: op.Action, OldID: w.ID}

		default:
			return nil, fmt.Errorf("unhandled operation %s %s", op.Action, op.ElementName())
		}

		results = append(results, indexed{pos: op.Index, res: res})
	}

	if err := tx.GrowChangeset(ctx, changesetID, len(p.ops), box); err != nil {
		return nil, fmt.Errorf("record changeset edits: %w", err)
	}

	// Operations were applied in grouped order; outcomes are reported in the
	// order the client submitted them.
	sort.SliceStable(results, func(i, j int) bool { return results[i].pos < results[j].pos })

	out := &UploadResult{Changeset: changesetID, Results: make([]OpResult, len(results))}
	for i, r := range results {
		out.Results[i] = r.res
	}
	return out, nil
}

// lockAndCheck locks the target row and enforces the optimistic version
// check shared by every modify and delete.
func lockAndCheck(ctx context.Context, tx Tx, op diff.Operation, id, supplied int64) (int64, error) {
	lock := tx.LockNode
	if op.IsWay() {
		lock = tx.LockWay
	}
	current, found, err := lock(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("lock %s %d: %w", op.ElementName(), id, err)
	}
	if !found {
		return 0, &NotFoundError{Element: op.ElementName(), ID: id, Index: op.Index}
	}
	if current != supplied {
		return 0, &ConflictError{
			Element: op.ElementName(), ID: id, Index: op.Index,
			Supplied: supplied, Current: current,
		}
	}
	return current, nil
}

// checkWayRefs verifies that every node the way references after resolution
// actually exists. Refs negotiated from placeholders were inserted earlier in
// this same transaction, so only the refs the client supplied as positive
// ids need a lookup.
func checkWayRefs(ctx context.Context, tx Tx, op diff.Operation, nodeIDs []int64, p *plan) error {
	fresh := make(map[int64]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		fresh[id] = true
	}

	var lookup []int64
	for _, ref := range op.Way.Refs {
		if !fresh[ref] {
			lookup = append(lookup, ref)
		}
	}
	if len(lookup) == 0 {
		return nil
	}

	missing, err := tx.MissingNodes(ctx, lookup)
	if err != nil {
		return fmt.Errorf("check refs of way %d: %w", op.Way.ID, err)
	}
	if len(missing) > 0 {
		return &NotFoundError{Element: "node", ID: missing[0], Index: op.Index}
	}
	return nil
}
