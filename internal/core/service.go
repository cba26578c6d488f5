// Package core implements the edit-upload engine: it turns a parsed diff
// document into negotiated identifiers, resolved references, and one atomic
// set of store changes, and reports the per-operation outcomes.
package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/atlasmelt/mapedit/internal/diff"
)

// Service provides uploads, changeset lifecycle, and read-only lookups over
// one Store. It holds no per-request state; concurrent uploads are isolated
// by the store's transactions plus per-row version checks.
type Service struct {
	store Store
}

// NewService creates a Service backed by the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Upload parses the diff document and applies it to the store as one
// transaction filed under the given changeset. Either every operation's
// effect commits or none does; the error reports the first failing
// operation. The caller's context bounds the whole unit of work; cancelling
// it rolls the transaction back.
func (s *Service) Upload(ctx context.Context, changesetID int64, doc io.Reader) (*UploadResult, error) {
	start := time.Now()

	ops, err := diff.Parse(doc)
	if err != nil {
		return nil, err
	}

	p, err := buildPlan(ops)
	if err != nil {
		return nil, err
	}

	var result *UploadResult
	err = s.store.InTx(ctx, func(tx Tx) error {
		var applyErr error
		result, applyErr = apply(ctx, tx, changesetID, p)
		return applyErr
	})
	if err != nil {
		return nil, err
	}

	slog.Info("upload committed",
		"changeset", changesetID,
		"operations", len(ops),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// CreateChangeset opens a new changeset carrying the given tags.
func (s *Service) CreateChangeset(ctx context.Context, tags map[string]string) (int64, error) {
	id, err := s.store.CreateChangeset(ctx, tags)
	if err != nil {
		return 0, fmt.Errorf("create changeset: %w", err)
	}
	slog.Info("changeset opened", "changeset", id)
	return id, nil
}

// CloseChangeset marks a changeset closed. Closing an already closed
// changeset fails with ChangesetClosedError.
func (s *Service) CloseChangeset(ctx context.Context, id int64) error {
	found, wasOpen, err := s.store.CloseChangeset(ctx, id)
	if err != nil {
		return fmt.Errorf("close changeset %d: %w", id, err)
	}
	if !found {
		return &NotFoundError{Element: "changeset", ID: id, Index: -1}
	}
	if !wasOpen {
		return &ChangesetClosedError{ID: id}
	}
	return nil
}

// GetChangeset returns a changeset's metadata.
func (s *Service) GetChangeset(ctx context.Context, id int64) (*Changeset, error) {
	cs, found, err := s.store.GetChangeset(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get changeset %d: %w", id, err)
	}
	if !found {
		return nil, &NotFoundError{Element: "changeset", ID: id, Index: -1}
	}
	return cs, nil
}

// GetNode returns one stored node.
func (s *Service) GetNode(ctx context.Context, id int64) (*diff.Node, error) {
	n, found, err := s.store.GetNode(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get node %d: %w", id, err)
	}
	if !found {
		return nil, &NotFoundError{Element: "node", ID: id, Index: -1}
	}
	return n, nil
}

// GetWay returns one stored way with its ordered node references.
func (s *Service) GetWay(ctx context.Context, id int64) (*diff.Way, error) {
	w, found, err := s.store.GetWay(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get way %d: %w", id, err)
	}
	if !found {
		return nil, &NotFoundError{Element: "way", ID: id, Index: -1}
	}
	return w, nil
}

// GetWayFull returns a way together with every node it references.
func (s *Service) GetWayFull(ctx context.Context, id int64) (*diff.Way, []diff.Node, error) {
	w, err := s.GetWay(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	nodes, err := s.store.GetNodes(ctx, w.Refs)
	if err != nil {
		return nil, nil, fmt.Errorf("get nodes of way %d: %w", id, err)
	}
	return w, nodes, nil
}

// Map returns every node inside the box plus every way referencing at least
// one of them. Reads never join an upload transaction; they see the last
// committed state.
func (s *Service) Map(ctx context.Context, b Bounds) ([]diff.Node, []diff.Way, error) {
	nodes, err := s.store.NodesInBounds(ctx, b)
	if err != nil {
		return nil, nil, fmt.Errorf("nodes in bounds: %w", err)
	}
	if len(nodes) == 0 {
		return nil, nil, nil
	}

	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	ways, err := s.store.WaysUsingNodes(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("ways using nodes: %w", err)
	}
	return nodes, ways, nil
}
