package service

import (
	"context"
	"errors"
	"testing"

	"github.com/FooledKiwi/ridemap-api/internal/mapsession"
	"github.com/FooledKiwi/ridemap-api/internal/routing"
)

// --- mock Router ---

type mockRouter struct {
	resp  *routing.Response
	err   error
	calls int
	last  routing.Request
}

func (m *mockRouter) Route(_ context.Context, req routing.Request) (*routing.Response, error) {
	m.calls++
	m.last = req
	return m.resp, m.err
}

var (
	paulista = mapsession.LatLng{Lat: -23.5614, Lng: -46.6559}
	se       = mapsession.LatLng{Lat: -23.5505, Lng: -46.6333}
)

// --- tests ---

func TestDirectionsService_Route_Success(t *testing.T) {
	r := &mockRouter{resp: &routing.Response{Polyline: "abc", DistanceMeters: 12345, DurationSeconds: 61}}
	svc := NewDirectionsService(r)

	got, err := svc.Route(context.Background(), paulista, se)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.last.OriginLat != paulista.Lat || r.last.DestinationLng != se.Lng {
		t.Errorf("request = %+v", r.last)
	}
	if got.Polyline != "abc" || got.DistanceMeters != 12345 || got.DurationSeconds != 61 {
		t.Errorf("directions = %+v", got)
	}
	if got.DistanceText != "12.3 km" {
		t.Errorf("distance text = %q, want 12.3 km", got.DistanceText)
	}
	if got.DurationText != "2 min" {
		t.Errorf("duration text = %q, want 2 min", got.DurationText)
	}
	if got.Origin != paulista || got.Destination != se {
		t.Errorf("endpoints = %v -> %v", got.Origin, got.Destination)
	}
}

func TestDirectionsService_Route_ProviderLabelsKept(t *testing.T) {
	r := &mockRouter{resp: &routing.Response{Polyline: "abc", DistanceMeters: 900, DurationSeconds: 300, DistanceText: "0,9 km", DurationText: "5 min"}}
	got, err := NewDirectionsService(r).Route(context.Background(), paulista, se)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DistanceText != "0,9 km" || got.DurationText != "5 min" {
		t.Errorf("labels = %q / %q", got.DistanceText, got.DurationText)
	}
}

func TestDirectionsService_Route_NoRoute(t *testing.T) {
	cases := map[string]*routing.Response{
		"nil response":   nil,
		"fallback":       {DistanceMeters: 2600, DurationSeconds: 400, IsFallback: true},
		"empty polyline": {DistanceMeters: 10, DurationSeconds: 5},
	}
	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewDirectionsService(&mockRouter{resp: resp}).Route(context.Background(), paulista, se)
			if !errors.Is(err, ErrNoRoute) {
				t.Errorf("err = %v, want ErrNoRoute", err)
			}
		})
	}
}

func TestDirectionsService_Route_RouterError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewDirectionsService(&mockRouter{err: boom}).Route(context.Background(), paulista, se)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
}

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		meters int
		want   string
	}{
		{0, "0 m"},
		{850, "850 m"},
		{999, "999 m"},
		{1000, "1.0 km"},
		{12345, "12.3 km"},
	}
	for _, tt := range tests {
		if got := formatDistance(tt.meters); got != tt.want {
			t.Errorf("formatDistance(%d) = %q, want %q", tt.meters, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "0 min"},
		{1, "1 min"},
		{60, "1 min"},
		{61, "2 min"},
		{3600, "1 h"},
		{3601, "1 h 1 min"},
		{3900, "1 h 5 min"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.seconds); got != tt.want {
			t.Errorf("formatDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
