// Package places binds text inputs to the provider's place autocomplete and
// normalizes selections into PlaceResult values.
package places

import (
	"context"
	"errors"
	"sync"
)

// ErrNotBound is returned when an input has no autocomplete widget yet.
var ErrNotBound = errors.New("places: input not bound")

// DefaultFields are the only place fields requested from the provider.
var DefaultFields = []string{"formatted_address", "geometry", "address_components"}

// AddressComponent is one part of a structured address.
type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// PlaceResult is a place the user picked from the suggestions. It is only
// ever built from a provider selection.
type PlaceResult struct {
	Address           string             `json:"address"`
	Lat               float64            `json:"lat"`
	Lng               float64            `json:"lng"`
	AddressComponents []AddressComponent `json:"address_components,omitempty"`
}

// Geometry is the resolved location of a provider place.
type Geometry struct {
	Lat float64
	Lng float64
}

// Place is a raw provider selection. Geometry is nil when the provider
// could not resolve coordinates.
type Place struct {
	PlaceID           string
	FormattedAddress  string
	Geometry          *Geometry
	AddressComponents []AddressComponent
}

// Prediction is one autocomplete suggestion.
type Prediction struct {
	PlaceID     string `json:"place_id"`
	Description string `json:"description"`
}

// AutocompleteOptions restricts and shapes the provider's suggestions.
type AutocompleteOptions struct {
	Country string
	Fields  []string
}

// Autocomplete attaches provider autocomplete behavior to an input.
type Autocomplete interface {
	Attach(ctx context.Context, in *Input, opts AutocompleteOptions, onPlaceChanged func(Place)) (Widget, error)
}

// Widget is the autocomplete behavior attached to one input.
type Widget interface {
	// Suggest returns predictions for the input's current text.
	Suggest(ctx context.Context) ([]Prediction, error)
	// Select resolves placeID and fires the place-changed callback.
	Select(ctx context.Context, placeID string) error
}

// Input is a text field that can carry an autocomplete binding. Its text
// can be changed freely without touching the binding.
type Input struct {
	mu     sync.Mutex
	text   string
	widget Widget

	bindMu sync.Mutex
}

// NewInput creates an empty Input.
func NewInput() *Input {
	return &Input{}
}

// Text returns the displayed text.
func (in *Input) Text() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.text
}

// SetText replaces the displayed text.
func (in *Input) SetText(s string) {
	in.mu.Lock()
	in.text = s
	in.mu.Unlock()
}

// Widget returns the attached widget, or nil.
func (in *Input) Widget() Widget {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.widget
}

// Resolver binds inputs to autocomplete.
type Resolver struct {
	ac   Autocomplete
	opts AutocompleteOptions
}

// NewResolver creates a Resolver restricting suggestions to country.
func NewResolver(ac Autocomplete, country string) *Resolver {
	return &Resolver{
		ac:   ac,
		opts: AutocompleteOptions{Country: country, Fields: DefaultFields},
	}
}

// Bind attaches autocomplete to in. onSelect fires for every selection that
// carries geometry; selections without coordinates are dropped. Binding an
// already bound input returns its existing widget and keeps the original
// callback.
func (r *Resolver) Bind(ctx context.Context, in *Input, onSelect func(PlaceResult)) (Widget, error) {
	in.bindMu.Lock()
	defer in.bindMu.Unlock()

	if w := in.Widget(); w != nil {
		return w, nil
	}
	w, err := r.ac.Attach(ctx, in, r.opts, func(p Place) {
		if res, ok := Normalize(p); ok {
			onSelect(res)
		}
	})
	if err != nil {
		return nil, err
	}
	in.mu.Lock()
	in.widget = w
	in.mu.Unlock()
	return w, nil
}

// Normalize converts a provider place into a PlaceResult. It reports false
// when the place has no geometry.
func Normalize(p Place) (PlaceResult, bool) {
	if p.Geometry == nil {
		return PlaceResult{}, false
	}
	return PlaceResult{
		Address:           p.FormattedAddress,
		Lat:               p.Geometry.Lat,
		Lng:               p.Geometry.Lng,
		AddressComponents: p.AddressComponents,
	}, true
}
