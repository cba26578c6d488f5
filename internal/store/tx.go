package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/atlasmelt/mapedit/internal/core"
	"github.com/atlasmelt/mapedit/internal/diff"
)

func (t *storeTx) LockChangeset(ctx context.Context, id int64) (open, found bool, err error) {
	err = t.tx.QueryRow(ctx,
		`SELECT open FROM changesets WHERE id = $1 FOR UPDATE`, id).Scan(&open)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return open, true, nil
}

func (t *storeTx) GrowChangeset(ctx context.Context, id int64, edits int, box *core.Bounds) error {
	if box == nil {
		_, err := t.tx.Exec(ctx,
			`UPDATE changesets SET num_changes = num_changes + $2 WHERE id = $1`, id, edits)
		return err
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE changesets SET
			num_changes = num_changes + $2,
			min_lon = LEAST(COALESCE(min_lon, $3), $3),
			min_lat = LEAST(COALESCE(min_lat, $4), $4),
			max_lon = GREATEST(COALESCE(max_lon, $5), $5),
			max_lat = GREATEST(COALESCE(max_lat, $6), $6)
		WHERE id = $1`,
		id, edits, box.MinLon, box.MinLat, box.MaxLon, box.MaxLat)
	return err
}

func (t *storeTx) InsertNode(ctx context.Context, changeset int64, n diff.Node) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO nodes (id, lon, lat, version, tags, changeset_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.Lon, n.Lat, n.Version, n.Tags, changeset)
	return err
}

func (t *storeTx) LockNode(ctx context.Context, id int64) (version int64, found bool, err error) {
	err = t.tx.QueryRow(ctx,
		`SELECT version FROM nodes WHERE id = $1 FOR UPDATE`, id).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, true, nil
}

func (t *storeTx) UpdateNode(ctx context.Context, changeset int64, n diff.Node) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE nodes SET lon = $2, lat = $3, version = $4, tags = $5, changeset_id = $6
		WHERE id = $1`,
		n.ID, n.Lon, n.Lat, n.Version, n.Tags, changeset)
	return err
}

func (t *storeTx) DeleteNode(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM nodes WHERE id = $1`, id)
	return err
}

// NodeReferenced reports whether any surviving way still lists the node,
// as seen from inside this transaction.
func (t *storeTx) NodeReferenced(ctx context.Context, id int64) (bool, error) {
	var referenced bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM way_nodes WHERE node_id = $1)`, id).Scan(&referenced)
	return referenced, err
}

func (t *storeTx) MissingNodes(ctx context.Context, ids []int64) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT wanted.id
		FROM unnest($1::bigint[]) AS wanted (id)
		LEFT JOIN nodes ON nodes.id = wanted.id
		WHERE nodes.id IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missing []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		missing = append(missing, id)
	}
	return missing, rows.Err()
}

func (t *storeTx) InsertWay(ctx context.Context, changeset int64, w diff.Way) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ways (id, version, tags, changeset_id)
		VALUES ($1, $2, $3, $4)`,
		w.ID, w.Version, w.Tags, changeset)
	if err != nil {
		return err
	}
	return t.insertWayNodes(ctx, w)
}

func (t *storeTx) LockWay(ctx context.Context, id int64) (version int64, found bool, err error) {
	err = t.tx.QueryRow(ctx,
		`SELECT version FROM ways WHERE id = $1 FOR UPDATE`, id).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, true, nil
}

func (t *storeTx) UpdateWay(ctx context.Context, changeset int64, w diff.Way) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE ways SET version = $2, tags = $3, changeset_id = $4 WHERE id = $1`,
		w.ID, w.Version, w.Tags, changeset)
	if err != nil {
		return err
	}
	// Membership is replaced wholesale; order lives in seq.
	if _, err := t.tx.Exec(ctx, `DELETE FROM way_nodes WHERE way_id = $1`, w.ID); err != nil {
		return err
	}
	return t.insertWayNodes(ctx, w)
}

func (t *storeTx) DeleteWay(ctx context.Context, id int64) error {
	// way_nodes rows go with it via ON DELETE CASCADE.
	_, err := t.tx.Exec(ctx, `DELETE FROM ways WHERE id = $1`, id)
	return err
}

func (t *storeTx) insertWayNodes(ctx context.Context, w diff.Way) error {
	if len(w.Refs) == 0 {
		return nil
	}
	seqs := make([]int32, len(w.Refs))
	for i := range w.Refs {
		seqs[i] = int32(i)
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO way_nodes (way_id, seq, node_id)
		SELECT $1, seq, node_id FROM unnest($2::int[], $3::bigint[]) AS m (seq, node_id)`,
		w.ID, seqs, w.Refs)
	if err != nil {
		return fmt.Errorf("insert way nodes: %w", err)
	}
	return nil
}
