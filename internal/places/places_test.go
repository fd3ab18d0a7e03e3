package places

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"googlemaps.github.io/maps"
)

// ---- test doubles ----

type fakePlacesClient struct {
	mu          sync.Mutex
	acRequests  []*maps.PlaceAutocompleteRequest
	detRequests []*maps.PlaceDetailsRequest
	predictions []maps.AutocompletePrediction
	details     maps.PlaceDetailsResult
	err         error
}

func (c *fakePlacesClient) PlaceAutocomplete(_ context.Context, r *maps.PlaceAutocompleteRequest) (maps.AutocompleteResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acRequests = append(c.acRequests, r)
	if c.err != nil {
		return maps.AutocompleteResponse{}, c.err
	}
	return maps.AutocompleteResponse{Predictions: c.predictions}, nil
}

func (c *fakePlacesClient) PlaceDetails(_ context.Context, r *maps.PlaceDetailsRequest) (maps.PlaceDetailsResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detRequests = append(c.detRequests, r)
	if c.err != nil {
		return maps.PlaceDetailsResult{}, c.err
	}
	return c.details, nil
}

type countingAutocomplete struct {
	attaches atomic.Int32
	inner    Autocomplete
}

func (a *countingAutocomplete) Attach(ctx context.Context, in *Input, opts AutocompleteOptions, fn func(Place)) (Widget, error) {
	a.attaches.Add(1)
	return a.inner.Attach(ctx, in, opts, fn)
}

func paulistaDetails() maps.PlaceDetailsResult {
	return maps.PlaceDetailsResult{
		PlaceID:          "ChIJ-paulista",
		FormattedAddress: "Av. Paulista, 1578 - Bela Vista, São Paulo - SP, Brasil",
		Geometry: maps.AddressGeometry{
			Location: maps.LatLng{Lat: -23.5614, Lng: -46.6559},
		},
		AddressComponents: []maps.AddressComponent{
			{LongName: "1578", ShortName: "1578", Types: []string{"street_number"}},
			{LongName: "Avenida Paulista", ShortName: "Av. Paulista", Types: []string{"route"}},
		},
	}
}

// ---- Input ----

func TestInput_SetTextKeepsBinding(t *testing.T) {
	client := &fakePlacesClient{details: paulistaDetails()}
	r := NewResolver(NewGoogleAutocompleteWithClient(client), "br")
	in := NewInput()

	w, err := r.Bind(context.Background(), in, func(PlaceResult) {})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	in.SetText("Av. Paul")
	in.SetText("")
	if in.Text() != "" {
		t.Errorf("text = %q, want empty", in.Text())
	}
	if in.Widget() != w {
		t.Error("SetText changed the binding")
	}
}

// ---- Resolver ----

func TestResolver_BindOncePerInput(t *testing.T) {
	ac := &countingAutocomplete{inner: NewGoogleAutocompleteWithClient(&fakePlacesClient{})}
	r := NewResolver(ac, "br")
	in := NewInput()

	var wg sync.WaitGroup
	widgets := make(chan Widget, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := r.Bind(context.Background(), in, func(PlaceResult) {})
			if err != nil {
				t.Errorf("Bind: %v", err)
				return
			}
			widgets <- w
		}()
	}
	wg.Wait()
	close(widgets)

	if got := ac.attaches.Load(); got != 1 {
		t.Errorf("attaches = %d, want 1", got)
	}
	var first Widget
	for w := range widgets {
		if first == nil {
			first = w
		}
		if w != first {
			t.Error("rebinding returned a different widget")
		}
	}

	if _, err := r.Bind(context.Background(), NewInput(), func(PlaceResult) {}); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if got := ac.attaches.Load(); got != 2 {
		t.Errorf("attaches = %d, want 2 after binding a second input", got)
	}
}

func TestResolver_AttachErrorLeavesInputUnbound(t *testing.T) {
	sdkErr := errors.New("provider failed")
	ac := &GoogleAutocomplete{client: func(context.Context) (PlacesClient, error) { return nil, sdkErr }}
	r := NewResolver(ac, "br")
	in := NewInput()

	if _, err := r.Bind(context.Background(), in, func(PlaceResult) {}); !errors.Is(err, sdkErr) {
		t.Fatalf("err = %v, want provider error", err)
	}
	if in.Widget() != nil {
		t.Error("input bound despite attach failure")
	}
}

func TestResolver_SelectionNormalized(t *testing.T) {
	client := &fakePlacesClient{details: paulistaDetails()}
	r := NewResolver(NewGoogleAutocompleteWithClient(client), "br")
	in := NewInput()

	var got []PlaceResult
	w, err := r.Bind(context.Background(), in, func(p PlaceResult) { got = append(got, p) })
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := w.Select(context.Background(), "ChIJ-paulista"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("callbacks = %d, want 1", len(got))
	}
	p := got[0]
	if p.Lat != -23.5614 || p.Lng != -46.6559 {
		t.Errorf("coords = %v,%v", p.Lat, p.Lng)
	}
	if p.Address != paulistaDetails().FormattedAddress {
		t.Errorf("address = %q", p.Address)
	}
	if len(p.AddressComponents) != 2 || p.AddressComponents[1].ShortName != "Av. Paulista" {
		t.Errorf("components = %+v", p.AddressComponents)
	}
	if in.Text() != p.Address {
		t.Errorf("input text = %q, want selected address", in.Text())
	}

	req := client.detRequests[0]
	want := []maps.PlaceDetailsFieldMask{
		maps.PlaceDetailsFieldMaskFormattedAddress,
		maps.PlaceDetailsFieldMaskGeometry,
		maps.PlaceDetailsFieldMaskAddressComponent,
	}
	if len(req.Fields) != len(want) {
		t.Fatalf("fields = %v, want %v", req.Fields, want)
	}
	for i := range want {
		if req.Fields[i] != want[i] {
			t.Errorf("fields[%d] = %v, want %v", i, req.Fields[i], want[i])
		}
	}
}

func TestResolver_SelectionWithoutGeometryIgnored(t *testing.T) {
	details := paulistaDetails()
	details.Geometry = maps.AddressGeometry{}
	client := &fakePlacesClient{details: details}
	r := NewResolver(NewGoogleAutocompleteWithClient(client), "br")

	called := false
	w, _ := r.Bind(context.Background(), NewInput(), func(PlaceResult) { called = true })
	if err := w.Select(context.Background(), "ChIJ-vague"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if called {
		t.Error("callback fired for a place without geometry")
	}
}

// ---- widget ----

func TestWidget_SuggestRestrictsCountry(t *testing.T) {
	client := &fakePlacesClient{predictions: []maps.AutocompletePrediction{
		{PlaceID: "a", Description: "Av. Paulista, São Paulo"},
		{PlaceID: "b", Description: "Rua Augusta, São Paulo"},
	}}
	r := NewResolver(NewGoogleAutocompleteWithClient(client), "BR")
	in := NewInput()
	w, _ := r.Bind(context.Background(), in, func(PlaceResult) {})

	in.SetText("  Av. Paul ")
	preds, err := w.Suggest(context.Background())
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(preds) != 2 || preds[0].PlaceID != "a" {
		t.Errorf("predictions = %+v", preds)
	}

	req := client.acRequests[0]
	if req.Input != "Av. Paul" {
		t.Errorf("input = %q", req.Input)
	}
	if c := req.Components[maps.ComponentCountry]; len(c) != 1 || c[0] != "br" {
		t.Errorf("country components = %v, want [br]", c)
	}
}

func TestWidget_SuggestBlankInput(t *testing.T) {
	client := &fakePlacesClient{}
	w, _ := NewResolver(NewGoogleAutocompleteWithClient(client), "br").Bind(context.Background(), NewInput(), func(PlaceResult) {})

	preds, err := w.Suggest(context.Background())
	if err != nil || preds != nil {
		t.Errorf("Suggest = %v, %v; want nil, nil", preds, err)
	}
	if len(client.acRequests) != 0 {
		t.Error("provider called for blank input")
	}
}

func TestWidget_SessionTokenRotatesAfterSelect(t *testing.T) {
	client := &fakePlacesClient{details: paulistaDetails()}
	in := NewInput()
	w, _ := NewResolver(NewGoogleAutocompleteWithClient(client), "br").Bind(context.Background(), in, func(PlaceResult) {})

	in.SetText("Paulista")
	_, _ = w.Suggest(context.Background())
	_ = w.Select(context.Background(), "ChIJ-paulista")
	in.SetText("Augusta")
	_, _ = w.Suggest(context.Background())

	first := client.acRequests[0].SessionToken
	if client.detRequests[0].SessionToken != first {
		t.Error("details request should reuse the autocomplete session token")
	}
	if client.acRequests[1].SessionToken == first {
		t.Error("session token not rotated after selection")
	}
}

func TestNormalize(t *testing.T) {
	if _, ok := Normalize(Place{FormattedAddress: "Brasil"}); ok {
		t.Error("place without geometry should not normalize")
	}
	res, ok := Normalize(Place{FormattedAddress: "x", Geometry: &Geometry{Lat: 1, Lng: 2}})
	if !ok || res.Lat != 1 || res.Lng != 2 || res.Address != "x" {
		t.Errorf("Normalize = %+v, %v", res, ok)
	}
}
