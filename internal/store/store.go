// Package store persists map features in PostgreSQL via pgx. All upload
// writes go through Store.InTx so one upload maps to one database
// transaction; read methods run on the pool and see committed state only.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlasmelt/mapedit/internal/core"
)

// Store is the PostgreSQL-backed implementation of core.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store over an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InTx runs fn inside one transaction. fn returning nil commits; any error
// (including context cancellation surfaced by a statement) rolls back, so a
// failed upload leaves no partial state behind.
func (s *Store) InTx(ctx context.Context, fn func(core.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&storeTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// storeTx adapts a pgx transaction to core.Tx.
type storeTx struct {
	tx pgx.Tx
}

func (t *storeTx) ReserveNodeIDs(ctx context.Context, count int) ([]int64, error) {
	return t.reserveIDs(ctx, "node_ids", count)
}

func (t *storeTx) ReserveWayIDs(ctx context.Context, count int) ([]int64, error) {
	return t.reserveIDs(ctx, "way_ids", count)
}

func (t *storeTx) reserveIDs(ctx context.Context, sequence string, count int) ([]int64, error) {
	if count == 0 {
		return nil, nil
	}

	rows, err := t.tx.Query(ctx,
		fmt.Sprintf("SELECT nextval('%s') FROM generate_series(1, $1)", sequence), count)
	if err != nil {
		return nil, fmt.Errorf("nextval %s: %w", sequence, err)
	}
	defer rows.Close()

	ids := make([]int64, 0, count)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}
