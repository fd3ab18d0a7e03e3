package mapsession

import "context"

// LatLng is a WGS-84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MapOptions configures the provider map. The zero value shows every
// control; DefaultMapOptions hides the UI chrome.
type MapOptions struct {
	DisableDefaultUI  bool   `json:"disable_default_ui"`
	ZoomControl       bool   `json:"zoom_control"`
	MapTypeControl    bool   `json:"map_type_control"`
	StreetViewControl bool   `json:"street_view_control"`
	FullscreenControl bool   `json:"fullscreen_control"`
	GestureHandling   string `json:"gesture_handling,omitempty"`
	MapID             string `json:"map_id,omitempty"`
}

// DefaultMapOptions disables all map chrome; the app draws its own controls.
var DefaultMapOptions = MapOptions{
	DisableDefaultUI: true,
	GestureHandling:  "greedy",
}

// MarkerOptions describes how a marker is drawn.
type MarkerOptions struct {
	Title string `json:"title,omitempty"`
	Icon  string `json:"icon,omitempty"`
	Label string `json:"label,omitempty"`
	// Rotation is applied to the icon, in degrees clockwise from north.
	Rotation float64 `json:"rotation,omitempty"`
}

// Directions is a route computed by the provider.
type Directions struct {
	Origin          LatLng
	Destination     LatLng
	DistanceMeters  int
	DurationSeconds int
	DistanceText    string
	DurationText    string
	// Polyline uses the Encoded Polyline Algorithm Format.
	Polyline string
}

// RendererOptions configures the route renderer.
type RendererOptions struct {
	SuppressMarkers bool    `json:"suppress_markers"`
	StrokeColor     string  `json:"stroke_color,omitempty"`
	StrokeWeight    float64 `json:"stroke_weight,omitempty"`
}

// DefaultRendererOptions draws the route without the provider's own A/B
// markers; the session places origin and destination markers itself.
var DefaultRendererOptions = RendererOptions{
	SuppressMarkers: true,
	StrokeColor:     "#1a73e8",
	StrokeWeight:    5,
}

// Canvas creates provider maps bound to a container.
type Canvas interface {
	NewMap(center LatLng, zoom int, opts MapOptions) (Map, error)
}

// Map is a live provider map.
type Map interface {
	PanTo(p LatLng)
	AddMarker(p LatLng, opts MarkerOptions) Marker
	NewRouteRenderer(opts RendererOptions) RouteRenderer
	Destroy()
}

// Marker is a live provider marker. Remove detaches it from its map.
type Marker interface {
	SetPosition(p LatLng)
	SetOptions(opts MarkerOptions)
	Remove()
}

// RouteRenderer draws a single route on a map.
type RouteRenderer interface {
	SetDirections(d *Directions)
	Attach()
	Detach()
}

// DirectionsService computes routes.
type DirectionsService interface {
	Route(ctx context.Context, origin, destination LatLng) (*Directions, error)
}

// Gate reports whether the mapping provider is usable.
type Gate interface {
	Ready(ctx context.Context) error
}
