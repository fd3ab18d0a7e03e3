package storage

import (
	"testing"
)

func TestParsePointWKT(t *testing.T) {
	tests := []struct {
		name    string
		wkt     string
		wantLat float64
		wantLng float64
		wantErr bool
	}{
		{name: "valid point", wkt: "POINT(-46.6333 -23.5505)", wantLat: -23.5505, wantLng: -46.6333},
		{name: "surrounding whitespace", wkt: "  POINT(-46.6333 -23.5505)  ", wantLat: -23.5505, wantLng: -46.6333},
		{name: "zero coordinates", wkt: "POINT(0 0)"},
		{name: "empty string", wkt: "", wantErr: true},
		{name: "wrong prefix", wkt: "LINESTRING(-46 -23)", wantErr: true},
		{name: "missing closing paren", wkt: "POINT(-46.6333 -23.5505", wantErr: true},
		{name: "invalid longitude", wkt: "POINT(x -23.5505)", wantErr: true},
		{name: "invalid latitude", wkt: "POINT(-46.6333 y)", wantErr: true},
		{name: "too many coordinates", wkt: "POINT(-46.6333 -23.5505 0)", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lng, err := parsePointWKT(tt.wkt)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePointWKT(%q) error = %v, wantErr %v", tt.wkt, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if lat != tt.wantLat || lng != tt.wantLng {
				t.Errorf("got (%v, %v), want (%v, %v)", lat, lng, tt.wantLat, tt.wantLng)
			}
		})
	}
}

func TestNormalizeRegion(t *testing.T) {
	for in, want := range map[string]string{"SP": "sp", " rj ": "rj", "": ""} {
		if got := normalizeRegion(in); got != want {
			t.Errorf("normalizeRegion(%q) = %q, want %q", in, got, want)
		}
	}
}
