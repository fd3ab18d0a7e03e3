package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queryTimeout is applied to every database query.
const queryTimeout = 5 * time.Second

// ---------------------------------------------------------------------------
// MapKeysRepository
// ---------------------------------------------------------------------------

type pgMapKeysRepository struct {
	pool *pgxpool.Pool
}

// NewMapKeysRepository creates a MapKeysRepository backed by the given pool.
func NewMapKeysRepository(pool *pgxpool.Pool) MapKeysRepository {
	return &pgMapKeysRepository{pool: pool}
}

func (r *pgMapKeysRepository) GetRegionKey(ctx context.Context, region string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var key string
	err := r.pool.QueryRow(ctx,
		`SELECT api_key FROM map_api_keys WHERE region = $1`,
		normalizeRegion(region),
	).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("storage: GetRegionKey: %w", err)
	}
	return key, nil
}

func (r *pgMapKeysRepository) ListRegionKeys(ctx context.Context) ([]RegionKey, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT region, api_key, updated_at FROM map_api_keys ORDER BY region`)
	if err != nil {
		return nil, fmt.Errorf("storage: ListRegionKeys: %w", err)
	}
	defer rows.Close()

	var keys []RegionKey
	for rows.Next() {
		var k RegionKey
		if err := rows.Scan(&k.Region, &k.APIKey, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: ListRegionKeys: scan: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *pgMapKeysRepository) SetRegionKey(ctx context.Context, region, apiKey string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO map_api_keys (region, api_key, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (region)
		DO UPDATE SET api_key = EXCLUDED.api_key, updated_at = NOW()`,
		normalizeRegion(region), apiKey)
	if err != nil {
		return fmt.Errorf("storage: SetRegionKey: %w", err)
	}
	return nil
}

func (r *pgMapKeysRepository) DeleteRegionKey(ctx context.Context, region string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := r.pool.Exec(ctx, `DELETE FROM map_api_keys WHERE region = $1`, normalizeRegion(region)); err != nil {
		return fmt.Errorf("storage: DeleteRegionKey: %w", err)
	}
	return nil
}

// normalizeRegion lower-cases and trims region codes so "SP " and "sp"
// address the same row.
func normalizeRegion(region string) string {
	return strings.ToLower(strings.TrimSpace(region))
}

// ---------------------------------------------------------------------------
// SettingsRepository
// ---------------------------------------------------------------------------

type pgSettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository creates a SettingsRepository backed by the given pool.
func NewSettingsRepository(pool *pgxpool.Pool) SettingsRepository {
	return &pgSettingsRepository{pool: pool}
}

func (r *pgSettingsRepository) GetSetting(ctx context.Context, key string) (*string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM app_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: GetSetting %q: %w", key, err)
	}
	return &value, nil
}

func (r *pgSettingsRepository) SetSetting(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO app_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value)
	if err != nil {
		return fmt.Errorf("storage: SetSetting %q: %w", key, err)
	}
	return nil
}

func (r *pgSettingsRepository) DeleteSetting(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := r.pool.Exec(ctx, `DELETE FROM app_settings WHERE key = $1`, key); err != nil {
		return fmt.Errorf("storage: DeleteSetting %q: %w", key, err)
	}
	return nil
}

// parsePointWKT parses the output of ST_AsText on a POINT, "POINT(lon lat)".
func parsePointWKT(wkt string) (lat, lng float64, err error) {
	wkt = strings.TrimSpace(wkt)
	if !strings.HasPrefix(wkt, "POINT(") || !strings.HasSuffix(wkt, ")") {
		return 0, 0, fmt.Errorf("unexpected WKT format: %q", wkt)
	}

	inner := wkt[len("POINT(") : len(wkt)-1]
	parts := strings.Fields(inner)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected WKT coordinates: %q", inner)
	}

	lng, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse lon %q: %w", parts[0], err)
	}
	lat, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse lat %q: %w", parts[1], err)
	}
	return lat, lng, nil
}
