package store

import (
	"context"
	"fmt"
)

// schema is applied on startup. Statements are idempotent so restarting
// against an initialized database is a no-op. The way_nodes foreign keys are
// a backstop: the engine checks references explicitly to produce precise
// errors before a constraint would fire.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS changesets (
		id          BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		closed_at   TIMESTAMPTZ,
		open        BOOLEAN NOT NULL DEFAULT TRUE,
		num_changes INTEGER NOT NULL DEFAULT 0,
		min_lon     DOUBLE PRECISION,
		min_lat     DOUBLE PRECISION,
		max_lon     DOUBLE PRECISION,
		max_lat     DOUBLE PRECISION,
		tags        JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,

	`CREATE SEQUENCE IF NOT EXISTS node_ids`,
	`CREATE SEQUENCE IF NOT EXISTS way_ids`,

	`CREATE TABLE IF NOT EXISTS nodes (
		id           BIGINT PRIMARY KEY,
		lon          DOUBLE PRECISION NOT NULL,
		lat          DOUBLE PRECISION NOT NULL,
		version      BIGINT NOT NULL,
		tags         JSONB NOT NULL DEFAULT '{}'::jsonb,
		changeset_id BIGINT NOT NULL REFERENCES changesets (id)
	)`,

	`CREATE TABLE IF NOT EXISTS ways (
		id           BIGINT PRIMARY KEY,
		version      BIGINT NOT NULL,
		tags         JSONB NOT NULL DEFAULT '{}'::jsonb,
		changeset_id BIGINT NOT NULL REFERENCES changesets (id)
	)`,

	`CREATE TABLE IF NOT EXISTS way_nodes (
		way_id  BIGINT NOT NULL REFERENCES ways (id) ON DELETE CASCADE,
		seq     INTEGER NOT NULL,
		node_id BIGINT NOT NULL REFERENCES nodes (id),
		PRIMARY KEY (way_id, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS way_nodes_node_id_idx ON way_nodes (node_id)`,
	`CREATE INDEX IF NOT EXISTS nodes_lon_lat_idx ON nodes (lon, lat)`,
}

// Init creates the schema if it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
