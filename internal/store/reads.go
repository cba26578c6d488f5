package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/atlasmelt/mapedit/internal/core"
	"github.com/atlasmelt/mapedit/internal/diff"
)

func (s *Store) GetNode(ctx context.Context, id int64) (*diff.Node, bool, error) {
	n := diff.Node{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT lon, lat, version, tags FROM nodes WHERE id = $1`, id).
		Scan(&n.Lon, &n.Lat, &n.Version, &n.Tags)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &n, true, nil
}

func (s *Store) GetNodes(ctx context.Context, ids []int64) ([]diff.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, lon, lat, version, tags
		FROM nodes WHERE id = ANY ($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodes(rows)
}

func (s *Store) GetWay(ctx context.Context, id int64) (*diff.Way, bool, error) {
	w := diff.Way{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT version, tags FROM ways WHERE id = $1`, id).
		Scan(&w.Version, &w.Tags)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT node_id FROM way_nodes WHERE way_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var ref int64
		if err := rows.Scan(&ref); err != nil {
			return nil, false, err
		}
		w.Refs = append(w.Refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return &w, true, nil
}

func (s *Store) NodesInBounds(ctx context.Context, b core.Bounds) ([]diff.Node, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, lon, lat, version, tags
		FROM nodes
		WHERE lon BETWEEN $1 AND $3 AND lat BETWEEN $2 AND $4
		ORDER BY id`,
		b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodes(rows)
}

// WaysUsingNodes returns each way referencing at least one of the given
// nodes, with its complete ordered reference list.
func (s *Store) WaysUsingNodes(ctx context.Context, nodeIDs []int64) ([]diff.Way, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT w.id, w.version, w.tags, wn.node_id
		FROM ways w
		JOIN way_nodes wn ON wn.way_id = w.id
		WHERE w.id IN (SELECT DISTINCT way_id FROM way_nodes WHERE node_id = ANY ($1))
		ORDER BY w.id, wn.seq`, nodeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ways []diff.Way
	for rows.Next() {
		var (
			id, version, ref int64
			tags             map[string]string
		)
		if err := rows.Scan(&id, &version, &tags, &ref); err != nil {
			return nil, err
		}
		if len(ways) == 0 || ways[len(ways)-1].ID != id {
			ways = append(ways, diff.Way{ID: id, Version: version, Tags: tags})
		}
		ways[len(ways)-1].Refs = append(ways[len(ways)-1].Refs, ref)
	}
	return ways, rows.Err()
}

func scanNodes(rows pgx.Rows) ([]diff.Node, error) {
	var nodes []diff.Node
	for rows.Next() {
		var n diff.Node
		if err := rows.Scan(&n.ID, &n.Lon, &n.Lat, &n.Version, &n.Tags); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}
