package provider

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"
)

// GoogleSDKInjector loads the Google Maps Platform client bound to a key.
type GoogleSDKInjector struct {
	opts []maps.ClientOption
}

// NewGoogleSDKInjector creates an injector. Extra client options (base URL,
// HTTP client, rate limit) are applied after the API key.
func NewGoogleSDKInjector(opts ...maps.ClientOption) *GoogleSDKInjector {
	return &GoogleSDKInjector{opts: opts}
}

// Inject builds the maps client.
func (g *GoogleSDKInjector) Inject(_ context.Context, key string) (*SDK, error) {
	opts := append([]maps.ClientOption{maps.WithAPIKey(key)}, g.opts...)
	c, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return &SDK{Key: key, Maps: c}, nil
}
