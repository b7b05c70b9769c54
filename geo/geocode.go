package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"towy-backend/models"
)

// Place is a reverse-geocoding result. Display is a short human-readable
// label, preferably "City, State".
type Place struct {
	Display     string
	City        string
	State       string
	Country     string
	FullAddress string
}

// Geocoder resolves coordinates to a place label. Implementations must
// return (nil, err) on failure; callers treat any failure as "no label".
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (*Place, error)
}

// NominatimClient resolves coordinates through the OpenStreetMap
// Nominatim reverse-geocoding API. No API key required, but Nominatim
// insists on an identifying User-Agent.
type NominatimClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

func NewNominatimClient(baseURL string) *NominatimClient {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	return &NominatimClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: "towy-backend/1.0 (reverse-geocoder)",
		client:    &http.Client{Timeout: 5 * time.Second},
	}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		Hamlet  string `json:"hamlet"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
}

func (n *NominatimClient) Reverse(ctx context.Context, lat, lng float64) (*Place, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", fmt.Sprintf("%g", lat))
	q.Set("lon", fmt.Sprintf("%g", lng))
	q.Set("zoom", "14")
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim returned status %d", resp.StatusCode)
	}

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	addr := body.Address
	city := firstNonEmpty(addr.City, addr.Town, addr.Village, addr.Hamlet)

	display := body.DisplayName
	if parts := joinNonEmpty(city, addr.State); parts != "" {
		display = parts
	}

	return &Place{
		Display:     display,
		City:        city,
		State:       addr.State,
		Country:     addr.Country,
		FullAddress: body.DisplayName,
	}, nil
}

// ResolveLocation produces the human-readable location text for a
// request. The fallback chain never fails: geocoded label, then the
// caller-supplied text, then the raw coordinate string.
func ResolveLocation(ctx context.Context, g Geocoder, coords *models.Coordinates, fallback string) string {
	if coords == nil {
		return fallback
	}
	if g != nil {
		if place, err := g.Reverse(ctx, coords.Latitude, coords.Longitude); err == nil && place != nil && place.Display != "" {
			return place.Display
		}
	}
	if fallback != "" {
		return fallback
	}
	return coords.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(values ...string) string {
	var parts []string
	for _, v := range values {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}
