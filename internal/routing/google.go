package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const (
	routesAPIURL = "https://routes.googleapis.com/directions/v2:computeRoutes"

	googleTimeout = 5 * time.Second

	// straightLineSpeedMPS is the fallback speed (~30 km/h, urban traffic).
	straightLineSpeedMPS = 30.0 / 3.6

	httpMaxIdleConns    = 10
	httpIdleConnTimeout = 30 * time.Second

	defaultLanguage = "pt-BR"

	routesFieldMask = "routes.duration,routes.distanceMeters,routes.polyline.encodedPolyline,routes.localizedValues"
)

// KeySource yields the Maps Platform API key.
type KeySource interface {
	Get(ctx context.Context) (string, error)
}

// GoogleRouter implements Router using the Google Routes API v2.
type GoogleRouter struct {
	keys       KeySource
	httpClient *http.Client
	language   string
	logger     Logger
	// apiURL is overridden in tests.
	apiURL string
}

// GoogleRouterOption configures a GoogleRouter.
type GoogleRouterOption func(*GoogleRouter)

// WithLanguage sets the language of the localized distance and duration labels.
func WithLanguage(code string) GoogleRouterOption {
	return func(g *GoogleRouter) { g.language = code }
}

// WithGoogleLogger sets the logger used when the router degrades to the
// straight-line estimate.
func WithGoogleLogger(l Logger) GoogleRouterOption {
	return func(g *GoogleRouter) { g.logger = l }
}

// NewGoogleRouter creates a Router backed by the Routes API v2. Each call
// asks keys for the API key; a provider.KeyCache answers with the key it
// fetched first and keeps it for the life of the process.
func NewGoogleRouter(keys KeySource, opts ...GoogleRouterOption) *GoogleRouter {
	transport := &http.Transport{
		MaxIdleConns:        httpMaxIdleConns,
		MaxIdleConnsPerHost: httpMaxIdleConns,
		IdleConnTimeout:     httpIdleConnTimeout,
	}
	g := &GoogleRouter{
		keys:     keys,
		apiURL:   routesAPIURL,
		language: defaultLanguage,
		httpClient: &http.Client{
			Timeout:   googleTimeout,
			Transport: transport,
		},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Route calls the Routes API and returns the primary route. When the call
// fails it returns a straight-line estimate with IsFallback set. Only a
// cancelled caller context is reported as an error.
func (g *GoogleRouter) Route(ctx context.Context, req Request) (*Response, error) {
	resp, err := g.callAPI(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if g.logger != nil {
			g.logger("routing: google API error (using straight-line fallback): %v", err)
		}
		return straightLineFallback(req), nil
	}
	return resp, nil
}

func (g *GoogleRouter) callAPI(ctx context.Context, req Request) (*Response, error) {
	key, err := g.keys.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("routing: google: api key: %w", err)
	}

	body := routesAPIRequest{
		Origin:            waypoint(req.OriginLat, req.OriginLng),
		Destination:       waypoint(req.DestinationLat, req.DestinationLng),
		TravelMode:        "DRIVE",
		RoutingPreference: "TRAFFIC_AWARE",
		LanguageCode:      g.language,
		Units:             "METRIC",
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("routing: google: marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, googleTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, g.apiURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("routing: google: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", key)
	httpReq.Header.Set("X-Goog-FieldMask", routesFieldMask)

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("routing: google: http: %w", err)
	}
	defer httpResp.Body.Close()

	respBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("routing: google: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("routing: google: status %d: %s", httpResp.StatusCode, string(respBytes))
	}

	var apiResp routesAPIResponse
	if err := json.Unmarshal(respBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("routing: google: unmarshal response: %w", err)
	}
	if len(apiResp.Routes) == 0 {
		return nil, fmt.Errorf("routing: google: no routes returned")
	}

	route := apiResp.Routes[0]
	durationS, err := parseDurationSeconds(route.Duration)
	if err != nil {
		return nil, fmt.Errorf("routing: google: parse duration %q: %w", route.Duration, err)
	}

	return &Response{
		Polyline:        route.Polyline.EncodedPolyline,
		DistanceMeters:  route.DistanceMeters,
		DurationSeconds: durationS,
		DistanceText:    route.LocalizedValues.Distance.Text,
		DurationText:    route.LocalizedValues.Duration.Text,
	}, nil
}

func waypoint(lat, lng float64) routesAPIWaypoint {
	return routesAPIWaypoint{Location: routesAPILocation{LatLng: routesAPILatLng{Latitude: lat, Longitude: lng}}}
}

// straightLineFallback estimates distance and duration from the great-circle
// distance. No path is available, so the polyline is empty.
func straightLineFallback(req Request) *Response {
	distM := haversineMeters(req.OriginLat, req.OriginLng, req.DestinationLat, req.DestinationLng)
	return &Response{
		DistanceMeters:  int(distM),
		DurationSeconds: int(distM / straightLineSpeedMPS),
		IsFallback:      true,
	}
}

// parseDurationSeconds parses a Routes API duration like "123s".
func parseDurationSeconds(s string) (int, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty duration string")
	}
	if s[len(s)-1] != 's' {
		return 0, fmt.Errorf("expected duration ending in 's', got %q", s)
	}
	numStr := s[:len(s)-1]
	if len(numStr) == 0 {
		return 0, fmt.Errorf("no number before 's' in %q", s)
	}
	seconds := 0
	for _, ch := range numStr {
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("non-integer duration %q", s)
		}
		seconds = seconds*10 + int(ch-'0')
	}
	return seconds, nil
}

// haversineMeters is the great-circle distance between two WGS-84 points.
func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusM = 6_371_000.0
	const deg2rad = math.Pi / 180.0

	dLat := (lat2 - lat1) * deg2rad
	dLng := (lng2 - lng1) * deg2rad
	sinDLat := math.Sin(dLat / 2)
	sinDLng := math.Sin(dLng / 2)
	a := sinDLat*sinDLat + math.Cos(lat1*deg2rad)*math.Cos(lat2*deg2rad)*sinDLng*sinDLng
	return earthRadiusM * 2 * math.Asin(math.Sqrt(a))
}

// --- Routes API v2 wire types ---

type routesAPIRequest struct {
	Origin            routesAPIWaypoint `json:"origin"`
	Destination       routesAPIWaypoint `json:"destination"`
	TravelMode        string            `json:"travelMode"`
	RoutingPreference string            `json:"routingPreference"`
	LanguageCode      string            `json:"languageCode"`
	Units             string            `json:"units"`
}

type routesAPIWaypoint struct {
	Location routesAPILocation `json:"location"`
}

type routesAPILocation struct {
	LatLng routesAPILatLng `json:"latLng"`
}

type routesAPILatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type routesAPIResponse struct {
	Routes []routesAPIRoute `json:"routes"`
}

type routesAPIRoute struct {
	DistanceMeters  int                      `json:"distanceMeters"`
	Duration        string                   `json:"duration"`
	Polyline        routesAPIPolyline        `json:"polyline"`
	LocalizedValues routesAPILocalizedValues `json:"localizedValues"`
}

type routesAPIPolyline struct {
	EncodedPolyline string `json:"encodedPolyline"`
}

type routesAPILocalizedValues struct {
	Distance routesAPIText `json:"distance"`
	Duration routesAPIText `json:"duration"`
}

type routesAPIText struct {
	Text string `json:"text"`
}
