package places

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"googlemaps.github.io/maps"

	"github.com/FooledKiwi/ridemap-api/internal/provider"
)

// PlacesClient is the subset of *maps.Client used for autocomplete.
type PlacesClient interface {
	PlaceAutocomplete(ctx context.Context, r *maps.PlaceAutocompleteRequest) (maps.AutocompleteResponse, error)
	PlaceDetails(ctx context.Context, r *maps.PlaceDetailsRequest) (maps.PlaceDetailsResult, error)
}

// SDKSource yields the loaded provider SDK.
type SDKSource interface {
	Acquire(ctx context.Context) (*provider.SDK, error)
}

// GoogleAutocomplete implements Autocomplete with the Places API.
type GoogleAutocomplete struct {
	client func(ctx context.Context) (PlacesClient, error)
}

// NewGoogleAutocomplete waits on src for the maps client before attaching.
func NewGoogleAutocomplete(src SDKSource) *GoogleAutocomplete {
	return &GoogleAutocomplete{client: func(ctx context.Context) (PlacesClient, error) {
		sdk, err := src.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return sdk.Maps, nil
	}}
}

// NewGoogleAutocompleteWithClient uses c directly.
func NewGoogleAutocompleteWithClient(c PlacesClient) *GoogleAutocomplete {
	return &GoogleAutocomplete{client: func(context.Context) (PlacesClient, error) { return c, nil }}
}

// Attach implements Autocomplete.
func (g *GoogleAutocomplete) Attach(ctx context.Context, in *Input, opts AutocompleteOptions, onPlaceChanged func(Place)) (Widget, error) {
	c, err := g.client(ctx)
	if err != nil {
		return nil, fmt.Errorf("places: attach: %w", err)
	}
	return &googleWidget{
		client:   c,
		in:       in,
		country:  strings.ToLower(opts.Country),
		fields:   fieldMasks(opts.Fields),
		onChange: onPlaceChanged,
		token:    maps.NewPlaceAutocompleteSessionToken(),
	}, nil
}

func fieldMasks(fields []string) []maps.PlaceDetailsFieldMask {
	out := make([]maps.PlaceDetailsFieldMask, 0, len(fields))
	for _, f := range fields {
		switch f {
		case "formatted_address":
			out = append(out, maps.PlaceDetailsFieldMaskFormattedAddress)
		case "geometry":
			out = append(out, maps.PlaceDetailsFieldMaskGeometry)
		case "address_components":
			out = append(out, maps.PlaceDetailsFieldMaskAddressComponent)
		}
	}
	return out
}

type googleWidget struct {
	client   PlacesClient
	in       *Input
	country  string
	fields   []maps.PlaceDetailsFieldMask
	onChange func(Place)

	mu    sync.Mutex
	token maps.PlaceAutocompleteSessionToken
}

func (w *googleWidget) sessionToken() maps.PlaceAutocompleteSessionToken {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.token
}

// Suggest returns no predictions for blank input.
func (w *googleWidget) Suggest(ctx context.Context) ([]Prediction, error) {
	text := strings.TrimSpace(w.in.Text())
	if text == "" {
		return nil, nil
	}
	req := &maps.PlaceAutocompleteRequest{
		Input:        text,
		SessionToken: w.sessionToken(),
	}
	if w.country != "" {
		req.Components = map[maps.Component][]string{maps.ComponentCountry: {w.country}}
	}
	resp, err := w.client.PlaceAutocomplete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("places: autocomplete: %w", err)
	}
	out := make([]Prediction, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		out = append(out, Prediction{PlaceID: p.PlaceID, Description: p.Description})
	}
	return out, nil
}

// Select fetches the place details and fires the place-changed callback.
// A details call ends the autocomplete session, so a fresh token is issued.
func (w *googleWidget) Select(ctx context.Context, placeID string) error {
	w.mu.Lock()
	token := w.token
	w.token = maps.NewPlaceAutocompleteSessionToken()
	w.mu.Unlock()

	res, err := w.client.PlaceDetails(ctx, &maps.PlaceDetailsRequest{
		PlaceID:      placeID,
		Fields:       w.fields,
		SessionToken: token,
	})
	if err != nil {
		return fmt.Errorf("places: details %s: %w", placeID, err)
	}

	p := Place{
		PlaceID:          res.PlaceID,
		FormattedAddress: res.FormattedAddress,
	}
	// Geometry is a value in the details result, so a missing one decodes
	// as (0,0). That point is in open ocean and is treated as absent.
	loc := res.Geometry.Location
	if loc.Lat != 0 || loc.Lng != 0 {
		p.Geometry = &Geometry{Lat: loc.Lat, Lng: loc.Lng}
	}
	for _, c := range res.AddressComponents {
		p.AddressComponents = append(p.AddressComponents, AddressComponent{
			LongName:  c.LongName,
			ShortName: c.ShortName,
			Types:     c.Types,
		})
	}
	if p.FormattedAddress != "" {
		w.in.SetText(p.FormattedAddress)
	}
	w.onChange(p)
	return nil
}
