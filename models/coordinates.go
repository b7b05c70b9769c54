package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Coordinates is the canonical latitude/longitude pair used everywhere
// inside the service. Client payloads are allowed to send coordinates as
// a "lat, lng" string, a {"lat": .., "lng": ..} object, or a two-element
// [lat, lng] array; ParseCoordinates normalizes all three at the API
// boundary.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Valid reports whether the pair is a plausible point on Earth.
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// String renders the pair in the same "lat, lng" form clients may submit.
func (c Coordinates) String() string {
	return fmt.Sprintf("%g, %g", c.Latitude, c.Longitude)
}

// ParseCoordinates converts any of the accepted input shapes into a
// canonical pair. It returns nil when the value is missing, malformed,
// or out of range; it never returns an error because an unusable
// location only degrades notification quality.
func ParseCoordinates(v any) *Coordinates {
	switch t := v.(type) {
	case Coordinates:
		return checked(t)
	case *Coordinates:
		if t == nil {
			return nil
		}
		return checked(*t)
	case string:
		return parseCoordinateString(t)
	case map[string]any:
		lat, okLat := coordField(t, "lat", "latitude")
		lng, okLng := coordField(t, "lng", "lon", "longitude")
		if !okLat || !okLng {
			return nil
		}
		return checked(Coordinates{Latitude: lat, Longitude: lng})
	case []any:
		if len(t) != 2 {
			return nil
		}
		lat, okLat := t[0].(float64)
		lng, okLng := t[1].(float64)
		if !okLat || !okLng {
			return nil
		}
		return checked(Coordinates{Latitude: lat, Longitude: lng})
	case []float64:
		if len(t) != 2 {
			return nil
		}
		return checked(Coordinates{Latitude: t[0], Longitude: t[1]})
	}
	return nil
}

// ParseCoordinatesJSON normalizes a raw JSON value ("lat, lng" string,
// {lat, lng} object or [lat, lng] array) into a canonical pair, or nil.
func ParseCoordinatesJSON(raw json.RawMessage) *Coordinates {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return ParseCoordinates(v)
}

func parseCoordinateString(s string) *Coordinates {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil
	}
	return checked(Coordinates{Latitude: lat, Longitude: lng})
}

func coordField(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func checked(c Coordinates) *Coordinates {
	if !c.Valid() {
		return nil
	}
	return &c
}
