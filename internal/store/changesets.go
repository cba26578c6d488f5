package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/atlasmelt/mapedit/internal/core"
)

func (s *Store) CreateChangeset(ctx context.Context, tags map[string]string) (int64, error) {
	if tags == nil {
		tags = map[string]string{}
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO changesets (tags) VALUES ($1) RETURNING id`, tags).Scan(&id)
	return id, err
}

func (s *Store) CloseChangeset(ctx context.Context, id int64) (found, wasOpen bool, err error) {
	err = s.pool.QueryRow(ctx, `
		UPDATE changesets
		SET open = FALSE, closed_at = COALESCE(closed_at, now())
		WHERE id = $1
		RETURNING (SELECT open FROM changesets before WHERE before.id = $1)`, id).Scan(&wasOpen)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, wasOpen, nil
}

func (s *Store) GetChangeset(ctx context.Context, id int64) (*core.Changeset, bool, error) {
	cs := core.Changeset{ID: id}
	var (
		closedAt                       *time.Time
		minLon, minLat, maxLon, maxLat *float64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT created_at, closed_at, open, num_changes,
		       min_lon, min_lat, max_lon, max_lat, tags
		FROM changesets WHERE id = $1`, id).
		Scan(&cs.CreatedAt, &closedAt, &cs.Open, &cs.NumChanges,
			&minLon, &minLat, &maxLon, &maxLat, &cs.Tags)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	cs.ClosedAt = closedAt
	if minLon != nil {
		cs.Bounds = &core.Bounds{MinLon: *minLon, MinLat: *minLat, MaxLon: *maxLon, MaxLat: *maxLat}
	}
	return &cs, true, nil
}
