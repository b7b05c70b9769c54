package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"towy-backend/models"
)

func TestNominatimReverse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("missing format=json")
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"display_name": "123 Main St, Long Beach, California, USA",
			"address": {"city": "Long Beach", "state": "California", "country": "USA"}
		}`))
	}))
	defer server.Close()

	client := NewNominatimClient(server.URL)
	place, err := client.Reverse(context.Background(), 33.79, -118.13)
	if err != nil {
		t.Fatalf("Reverse returned error: %v", err)
	}
	if place.Display != "Long Beach, California" {
		t.Errorf("Display = %q, want %q", place.Display, "Long Beach, California")
	}
	if place.City != "Long Beach" {
		t.Errorf("City = %q", place.City)
	}
}

func TestNominatimReverseTownFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"display_name": "somewhere", "address": {"town": "Barstow", "state": "California"}}`))
	}))
	defer server.Close()

	place, err := NewNominatimClient(server.URL).Reverse(context.Background(), 34.9, -117.0)
	if err != nil {
		t.Fatalf("Reverse returned error: %v", err)
	}
	if place.Display != "Barstow, California" {
		t.Errorf("Display = %q", place.Display)
	}
}

func TestNominatimReverseServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	if _, err := NewNominatimClient(server.URL).Reverse(context.Background(), 0, 0); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

type stubGeocoder struct {
	place *Place
	err   error
}

func (s stubGeocoder) Reverse(context.Context, float64, float64) (*Place, error) {
	return s.place, s.err
}

func TestResolveLocation(t *testing.T) {
	coords := &models.Coordinates{Latitude: 33.79, Longitude: -118.13}

	got := ResolveLocation(context.Background(), stubGeocoder{place: &Place{Display: "Long Beach, California"}}, coords, "corner of 5th")
	if got != "Long Beach, California" {
		t.Errorf("geocoded label not preferred: %q", got)
	}

	got = ResolveLocation(context.Background(), stubGeocoder{err: errors.New("down")}, coords, "corner of 5th")
	if got != "corner of 5th" {
		t.Errorf("fallback text not used: %q", got)
	}

	got = ResolveLocation(context.Background(), stubGeocoder{err: errors.New("down")}, coords, "")
	if got != coords.String() {
		t.Errorf("coordinate string not used: %q", got)
	}

	got = ResolveLocation(context.Background(), nil, nil, "roadside")
	if got != "roadside" {
		t.Errorf("nil coords should keep fallback: %q", got)
	}
}

func TestCoveringCellsSpanTheRadius(t *testing.T) {
	lat, lng := 33.79, -118.13
	cells := CoveringCells(lat, lng, 50)

	contains := func(cell string) bool {
		for _, c := range cells {
			if c == cell {
				return true
			}
		}
		return false
	}

	if !contains(Cell(lat, lng)) {
		t.Error("center cell missing from cover")
	}
	for _, c := range cells {
		if len(c) != CellPrecision {
			t.Errorf("cell %q has wrong precision", c)
		}
	}

	// Points 45 km out in each cardinal direction land several cells
	// away from the center at this precision; the cover must reach
	// them all.
	points := map[string][2]float64{
		"north": {lat + KmToDegrees(45), lng},
		"south": {lat - KmToDegrees(45), lng},
		"east":  {lat, lng + LngKmToDegrees(45, lat)},
		"west":  {lat, lng - LngKmToDegrees(45, lat)},
	}
	for dir, p := range points {
		if d := DistanceKm(lat, lng, p[0], p[1]); d > 50 {
			t.Fatalf("%s test point is %.1f km out, beyond the radius", dir, d)
		}
		if !contains(Cell(p[0], p[1])) {
			t.Errorf("cell for point 45 km %s not covered", dir)
		}
	}
}

func TestCoveringCellsSmallRadius(t *testing.T) {
	cells := CoveringCells(33.79, -118.13, 0.1)
	if len(cells) == 0 {
		t.Fatal("empty cover")
	}
	if cells[0] != Cell(33.79, -118.13) {
		t.Errorf("first cell %q is not the center", cells[0])
	}
	if len(cells) > 9 {
		t.Errorf("%d cells for a 100 m radius, expected a handful", len(cells))
	}
}
