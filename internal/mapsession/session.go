// Package mapsession keeps a live provider map in sync with application
// state. A Session is the only path through which markers and the route
// overlay are created, mutated or destroyed.
package mapsession

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by CreateMap on a closed session.
var ErrClosed = errors.New("mapsession: session closed")

// RouteInfo summarizes the route currently drawn on the map.
type RouteInfo struct {
	DistanceKm   float64 `json:"distance_km"`
	DurationMin  int     `json:"duration_min"`
	DistanceText string  `json:"distance_text"`
	DurationText string  `json:"duration_text"`
	Polyline     string  `json:"polyline"`
}

func newRouteInfo(d *Directions) *RouteInfo {
	return &RouteInfo{
		DistanceKm:   float64(d.DistanceMeters) / 1000,
		DurationMin:  int(math.Ceil(float64(d.DurationSeconds) / 60)),
		DistanceText: d.DistanceText,
		DurationText: d.DurationText,
		Polyline:     d.Polyline,
	}
}

// Session owns one provider map and every overlay drawn on it.
//
// All methods are safe for concurrent use. Every method other than
// CreateMap is a no-op until the map exists.
type Session struct {
	gate       Gate
	canvas     Canvas
	directions DirectionsService
	logger     *zap.Logger

	mu       sync.Mutex
	m        Map
	markers  map[string]Marker
	renderer RouteRenderer
	route    *RouteInfo
	routeSeq uint64
	closed   bool
}

// New creates a Session. The map is not created until CreateMap.
func New(gate Gate, canvas Canvas, directions DirectionsService, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		gate:       gate,
		canvas:     canvas,
		directions: directions,
		logger:     logger,
		markers:    make(map[string]Marker),
	}
}

// CreateMap waits for the provider and creates the map. Calling it on a
// session that already has a map does nothing.
func (s *Session) CreateMap(ctx context.Context, center LatLng, zoom int, opts MapOptions) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.m != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.gate.Ready(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.m != nil {
		return nil
	}
	m, err := s.canvas.NewMap(center, zoom, opts)
	if err != nil {
		return err
	}
	s.m = m
	return nil
}

// Recenter pans the map to p. A nil point is ignored.
func (s *Session) Recenter(p *LatLng) {
	if p == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		return
	}
	s.m.PanTo(*p)
}

// UpsertMarker moves the marker registered under id, or creates it. An
// existing marker is mutated in place, never recreated. Returns nil when
// there is no map yet.
func (s *Session) UpsertMarker(id string, p LatLng, opts MarkerOptions) Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		return nil
	}
	if mk, ok := s.markers[id]; ok {
		mk.SetPosition(p)
		mk.SetOptions(opts)
		return mk
	}
	mk := s.m.AddMarker(p, opts)
	s.markers[id] = mk
	return mk
}

// RemoveMarker detaches and forgets the marker registered under id.
func (s *Session) RemoveMarker(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mk, ok := s.markers[id]; ok {
		mk.Remove()
		delete(s.markers, id)
	}
}

// ClearAllMarkers detaches and forgets every tracked marker.
func (s *Session) ClearAllMarkers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearMarkersLocked()
}

func (s *Session) clearMarkersLocked() {
	for id, mk := range s.markers {
		mk.Remove()
		delete(s.markers, id)
	}
}

// MarkerIDs returns the tracked marker IDs in sorted order.
func (s *Session) MarkerIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.markers))
	for id := range s.markers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RenderRoute asks the provider for a route and draws it, replacing the
// route currently shown.
//
// It returns nil when the provider fails or when a newer RenderRoute or
// ClearRoute was issued while the request was in flight. In both cases the
// route already on the map is left untouched.
func (s *Session) RenderRoute(ctx context.Context, origin, destination LatLng) *RouteInfo {
	s.mu.Lock()
	if s.m == nil || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.routeSeq++
	seq := s.routeSeq
	s.mu.Unlock()

	d, err := s.directions.Route(ctx, origin, destination)
	if err != nil {
		s.logger.Warn("route request failed",
			zap.Float64("origin_lat", origin.Lat),
			zap.Float64("origin_lng", origin.Lng),
			zap.Float64("destination_lat", destination.Lat),
			zap.Float64("destination_lng", destination.Lng),
			zap.Error(err),
		)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.m == nil || seq != s.routeSeq {
		s.logger.Debug("discarding stale route response", zap.Uint64("seq", seq), zap.Uint64("latest", s.routeSeq))
		return nil
	}

	if s.renderer == nil {
		s.renderer = s.m.NewRouteRenderer(DefaultRendererOptions)
	}
	s.renderer.SetDirections(d)
	s.renderer.Attach()

	s.route = newRouteInfo(d)
	info := *s.route
	return &info
}

// ClearRoute detaches the route renderer and forgets the route. Any
// in-flight RenderRoute is superseded.
func (s *Session) ClearRoute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routeSeq++
	if s.renderer != nil {
		s.renderer.Detach()
	}
	s.route = nil
}

// Route returns the route currently drawn, or nil.
func (s *Session) Route() *RouteInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.route == nil {
		return nil
	}
	info := *s.route
	return &info
}

// Close tears down every overlay and the map. Further calls are no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.routeSeq++
	s.clearMarkersLocked()
	if s.renderer != nil {
		s.renderer.Detach()
		s.renderer = nil
	}
	s.route = nil
	if s.m != nil {
		s.m.Destroy()
		s.m = nil
	}
}
