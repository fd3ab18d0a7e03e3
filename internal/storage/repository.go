// Package storage provides PostgreSQL-backed repository implementations.
package storage

import (
	"context"
	"time"
)

// RegionKey is a Maps Platform API key override for one region.
type RegionKey struct {
	Region    string
	APIKey    string
	UpdatedAt time.Time
}

// MapKeysRepository manages per-region API key overrides.
type MapKeysRepository interface {
	// GetRegionKey returns the key configured for region, or "" when the
	// region has no override.
	GetRegionKey(ctx context.Context, region string) (string, error)

	// ListRegionKeys returns every override ordered by region.
	ListRegionKeys(ctx context.Context) ([]RegionKey, error)

	// SetRegionKey inserts or replaces the override for region.
	SetRegionKey(ctx context.Context, region, apiKey string) error

	// DeleteRegionKey removes the override for region. No-op if absent.
	DeleteRegionKey(ctx context.Context, region string) error
}

// SettingsRepository reads and writes rows of the app_settings table.
type SettingsRepository interface {
	// GetSetting returns the value stored under key, or (nil, nil) if unset.
	GetSetting(ctx context.Context, key string) (*string, error)

	// SetSetting inserts or replaces the value stored under key.
	SetSetting(ctx context.Context, key, value string) error

	// DeleteSetting removes key. No-op if absent.
	DeleteSetting(ctx context.Context, key string) error
}
