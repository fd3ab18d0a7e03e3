// Package routing computes driving routes between two points and caches
// them in Postgres.
package routing

import "context"

// Request holds the origin and destination coordinates for a route.
type Request struct {
	OriginLat      float64
	OriginLng      float64
	DestinationLat float64
	DestinationLng float64
}

// Response holds the result of a route calculation.
type Response struct {
	// Polyline is the encoded polyline (Encoded Polyline Algorithm Format).
	Polyline        string
	DistanceMeters  int
	DurationSeconds int

	// DistanceText and DurationText are the provider's localized labels.
	// Empty when the provider did not send them.
	DistanceText string
	DurationText string

	// IsFallback is true when the response is a straight-line estimate
	// produced because the live API call failed. Fallbacks carry no polyline
	// and are never cached.
	IsFallback bool
}

// Router calculates a route between two geographic points.
type Router interface {
	Route(ctx context.Context, req Request) (*Response, error)
}

// Logger is a printf-style logging function.
type Logger func(format string, args ...any)
