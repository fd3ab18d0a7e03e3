package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/FooledKiwi/ridemap-api/internal/mapsession"
	"github.com/FooledKiwi/ridemap-api/internal/routing"
)

// ErrNoRoute is returned when the routing provider produced no usable route.
// Straight-line estimates count as no route: they carry no path to draw.
var ErrNoRoute = errors.New("no route found")

// DirectionsService adapts a routing.Router to mapsession.DirectionsService.
type DirectionsService struct {
	router routing.Router
}

// NewDirectionsService creates a DirectionsService. router should be a
// *routing.CachedRouter wrapping a *routing.GoogleRouter in production.
func NewDirectionsService(router routing.Router) *DirectionsService {
	return &DirectionsService{router: router}
}

// Route implements mapsession.DirectionsService.
func (s *DirectionsService) Route(ctx context.Context, origin, destination mapsession.LatLng) (*mapsession.Directions, error) {
	resp, err := s.router.Route(ctx, routing.Request{
		OriginLat:      origin.Lat,
		OriginLng:      origin.Lng,
		DestinationLat: destination.Lat,
		DestinationLng: destination.Lng,
	})
	if err != nil {
		return nil, fmt.Errorf("service: directions: %w", err)
	}
	if resp == nil || resp.IsFallback || resp.Polyline == "" {
		return nil, ErrNoRoute
	}

	d := &mapsession.Directions{
		Origin:          origin,
		Destination:     destination,
		DistanceMeters:  resp.DistanceMeters,
		DurationSeconds: resp.DurationSeconds,
		DistanceText:    resp.DistanceText,
		DurationText:    resp.DurationText,
		Polyline:        resp.Polyline,
	}
	if d.DistanceText == "" {
		d.DistanceText = formatDistance(resp.DistanceMeters)
	}
	if d.DurationText == "" {
		d.DurationText = formatDuration(resp.DurationSeconds)
	}
	return d, nil
}

// formatDistance renders meters as "850 m" below one kilometer and as
// "12.3 km" above.
func formatDistance(meters int) string {
	if meters < 1000 {
		return strconv.Itoa(meters) + " m"
	}
	return strconv.FormatFloat(float64(meters)/1000, 'f', 1, 64) + " km"
}

// formatDuration renders seconds as whole minutes rounded up, switching to
// "1 h 5 min" past the hour.
func formatDuration(seconds int) string {
	mins := int(math.Ceil(float64(seconds) / 60))
	if mins < 60 {
		return strconv.Itoa(mins) + " min"
	}
	h, m := mins/60, mins%60
	if m == 0 {
		return strconv.Itoa(h) + " h"
	}
	return fmt.Sprintf("%d h %d min", h, m)
}
