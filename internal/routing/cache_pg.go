package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgCacheStore struct {
	pool *pgxpool.Pool
}

// NewPgCacheStore creates a CacheStore backed by the route_cache table.
func NewPgCacheStore(pool *pgxpool.Pool) CacheStore {
	return &pgCacheStore{pool: pool}
}

func (s *pgCacheStore) GetCachedRoute(ctx context.Context, key CacheKey) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, cacheQueryTimeout)
	defer cancel()

	const q = `
		SELECT polyline, distance_m, duration_s, distance_text, duration_text
		FROM route_cache
		WHERE origin_hash      = $1
		  AND destination_hash = $2
		  AND expires_at       > NOW()`

	var (
		resp      Response
		distanceM int32
		durationS int32
	)
	err := s.pool.QueryRow(ctx, q, key.Origin, key.Destination).
		Scan(&resp.Polyline, &distanceM, &durationS, &resp.DistanceText, &resp.DurationText)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("routing: cache: get: %w", err)
	}
	resp.DistanceMeters = int(distanceM)
	resp.DurationSeconds = int(durationS)
	return &resp, nil
}

func (s *pgCacheStore) SetCachedRoute(ctx context.Context, key CacheKey, resp *Response, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, cacheQueryTimeout)
	defer cancel()

	const q = `
		INSERT INTO route_cache
			(origin_hash, destination_hash, polyline, distance_m, duration_s,
			 distance_text, duration_text, calc_ts, expires_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, NOW(), $8)
		ON CONFLICT (origin_hash, destination_hash)
		DO UPDATE SET
			polyline      = EXCLUDED.polyline,
			distance_m    = EXCLUDED.distance_m,
			duration_s    = EXCLUDED.duration_s,
			distance_text = EXCLUDED.distance_text,
			duration_text = EXCLUDED.duration_text,
			calc_ts       = EXCLUDED.calc_ts,
			expires_at    = EXCLUDED.expires_at`

	_, err := s.pool.Exec(ctx, q,
		key.Origin,
		key.Destination,
		resp.Polyline,
		int32(resp.DistanceMeters),
		int32(resp.DurationSeconds),
		resp.DistanceText,
		resp.DurationText,
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("routing: cache: set: %w", err)
	}
	return nil
}
