package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"towy-backend/events"
	"towy-backend/matching"
	"towy-backend/models"
)

// NearbyProviders finds available providers around a point, filtered by
// service type and sorted nearest first.
func (h *Handler) NearbyProviders(w http.ResponseWriter, r *http.Request) {
	lat, lng, ok := queryCoordinates(r)
	if !ok {
		http.Error(w, "Latitude and longitude are required", http.StatusBadRequest)
		return
	}

	radius := matching.DefaultRadiusKm
	if s := r.URL.Query().Get("radius"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			http.Error(w, "Invalid radius", http.StatusBadRequest)
			return
		}
		radius = v
	}
	serviceType := models.ServiceType(r.URL.Query().Get("service_type"))

	matches, err := h.locator.FindNearby(r.Context(), lat, lng, radius, serviceType)
	if err != nil {
		h.log.WithError(err).Error("failed to find nearby providers")
		http.Error(w, "Error finding nearby providers", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// GetProvider fetches one provider profile by id.
func (h *Handler) GetProvider(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	provider, err := h.providers.GetByID(r.Context(), id)
	if err != nil {
		h.log.WithError(err).Error("failed to fetch provider")
		http.Error(w, "Error fetching provider", http.StatusInternalServerError)
		return
	}
	if provider == nil {
		http.Error(w, "Provider not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, provider)
}

// UpdateProvider edits the calling provider's profile.
func (h *Handler) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload struct {
		BusinessName string   `json:"business_name"`
		Services     []string `json:"services"`
		Phone        string   `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	provider, err := h.providers.Update(r.Context(), caller.ID, payload.BusinessName, payload.Services, payload.Phone)
	if err != nil {
		h.log.WithError(err).Error("failed to update provider")
		http.Error(w, "Error updating provider", http.StatusInternalServerError)
		return
	}
	if provider == nil {
		http.Error(w, "Provider not found", http.StatusNotFound)
		return
	}

	h.syncGeoIndex(r.Context(), provider)
	writeJSON(w, http.StatusOK, provider)
}

// SetAvailability toggles the calling provider's availability and
// emits the matching provider event.
func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload struct {
		IsAvailable bool `json:"is_available"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	provider, err := h.providers.SetAvailability(r.Context(), caller.ID, payload.IsAvailable)
	if err != nil {
		h.log.WithError(err).Error("failed to set provider availability")
		http.Error(w, "Error updating availability", http.StatusInternalServerError)
		return
	}
	if provider == nil {
		http.Error(w, "Provider not found", http.StatusNotFound)
		return
	}

	h.syncGeoIndex(r.Context(), provider)

	eventType := events.TypeProviderUnavailable
	if provider.IsAvailable {
		eventType = events.TypeProviderAvailable
	}
	h.bus.Emit(events.NewEvent(eventType, events.ProviderData{
		ProviderID:  provider.ID,
		Coordinates: provider.Location,
		Services:    provider.Services,
	}))

	writeJSON(w, http.StatusOK, provider)
}

// UpdateLocation moves the calling provider and emits
// provider_location_updated.
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	coords := models.Coordinates{Latitude: payload.Latitude, Longitude: payload.Longitude}
	if !coords.Valid() {
		http.Error(w, "Invalid coordinates", http.StatusBadRequest)
		return
	}

	provider, err := h.providers.UpdateLocation(r.Context(), caller.ID, coords)
	if err != nil {
		h.log.WithError(err).Error("failed to update provider location")
		http.Error(w, "Error updating location", http.StatusInternalServerError)
		return
	}
	if provider == nil {
		http.Error(w, "Provider not found", http.StatusNotFound)
		return
	}

	h.syncGeoIndex(r.Context(), provider)

	h.bus.Emit(events.NewEvent(events.TypeProviderLocationUpdated, events.ProviderData{
		ProviderID:  provider.ID,
		Coordinates: provider.Location,
		Services:    provider.Services,
	}))

	writeJSON(w, http.StatusOK, provider)
}

// Health is a liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
