package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/FooledKiwi/ridemap-api/internal/storage"
)

// ErrNoKeyConfigured is returned when no Maps API key is configured at any
// level.
var ErrNoKeyConfigured = errors.New("no maps API key configured")

// SettingMapsAPIKey is the app_settings row holding the global key override.
const SettingMapsAPIKey = "maps_api_key"

// KeyService resolves the Maps Platform API key handed to clients.
type KeyService struct {
	regions  storage.MapKeysRepository
	settings storage.SettingsRepository
	envKey   string
}

// NewKeyService creates a KeyService. envKey is the last-resort key from the
// process environment and may be empty.
func NewKeyService(regions storage.MapKeysRepository, settings storage.SettingsRepository, envKey string) *KeyService {
	return &KeyService{regions: regions, settings: settings, envKey: strings.TrimSpace(envKey)}
}

// Resolve returns the key for region. A region override wins over the global
// override, which wins over the environment key. An empty region skips the
// region lookup.
func (s *KeyService) Resolve(ctx context.Context, region string) (string, error) {
	if strings.TrimSpace(region) != "" {
		key, err := s.regions.GetRegionKey(ctx, region)
		if err != nil {
			return "", fmt.Errorf("service: resolve key: region %q: %w", region, err)
		}
		if key = strings.TrimSpace(key); key != "" {
			return key, nil
		}
	}

	global, err := s.settings.GetSetting(ctx, SettingMapsAPIKey)
	if err != nil {
		return "", fmt.Errorf("service: resolve key: global: %w", err)
	}
	if global != nil && strings.TrimSpace(*global) != "" {
		return strings.TrimSpace(*global), nil
	}

	if s.envKey != "" {
		return s.envKey, nil
	}
	return "", ErrNoKeyConfigured
}

// SetGlobalKey stores the global override. An empty key clears it.
func (s *KeyService) SetGlobalKey(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return s.settings.DeleteSetting(ctx, SettingMapsAPIKey)
	}
	return s.settings.SetSetting(ctx, SettingMapsAPIKey, strings.TrimSpace(key))
}

// SetRegionKey stores the override for region. An empty key clears it.
func (s *KeyService) SetRegionKey(ctx context.Context, region, key string) error {
	if strings.TrimSpace(key) == "" {
		return s.regions.DeleteRegionKey(ctx, region)
	}
	return s.regions.SetRegionKey(ctx, region, strings.TrimSpace(key))
}

// ListRegionKeys returns every region override.
func (s *KeyService) ListRegionKeys(ctx context.Context) ([]storage.RegionKey, error) {
	return s.regions.ListRegionKeys(ctx)
}
