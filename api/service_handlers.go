package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"towy-backend/database"
	"towy-backend/events"
	"towy-backend/geo"
	"towy-backend/matching"
	"towy-backend/models"
)

type createRequestPayload struct {
	ServiceType string          `json:"service_type"`
	Location    string          `json:"location"`
	Coordinates json.RawMessage `json:"coordinates"`
	Description string          `json:"description"`
	VehicleType string          `json:"vehicle_type"`
}

// CreateServiceRequest validates and persists a new request, then emits
// request_created. Notification dispatch happens asynchronously behind
// the event; this handler never waits for it.
func (h *Handler) CreateServiceRequest(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload createRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if !models.ValidServiceType(payload.ServiceType) {
		http.Error(w, "Invalid service type", http.StatusBadRequest)
		return
	}

	coords := models.ParseCoordinatesJSON(payload.Coordinates)
	location := geo.ResolveLocation(r.Context(), h.geocoder, coords, payload.Location)

	now := time.Now().UTC()
	request := models.ServiceRequest{
		ID:          uuid.New().String(),
		UserID:      caller.ID,
		ServiceType: models.ServiceType(payload.ServiceType),
		Location:    location,
		Coordinates: coords,
		Description: payload.Description,
		VehicleType: payload.VehicleType,
		Status:      models.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.requests.Create(r.Context(), &request); err != nil {
		h.log.WithError(err).Error("failed to create service request")
		http.Error(w, "Error creating service request", http.StatusInternalServerError)
		return
	}

	h.bus.Emit(events.NewEvent(events.TypeRequestCreated, events.RequestData{
		RequestID:   request.ID,
		UserID:      request.UserID,
		ServiceType: request.ServiceType,
		Location:    request.Location,
		Coordinates: request.Coordinates,
		Description: request.Description,
		VehicleType: request.VehicleType,
	}))

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Service request created",
		"service": request,
	})
}

// GetServiceRequest fetches one request by id.
func (h *Handler) GetServiceRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	request, err := h.requests.GetByID(r.Context(), id)
	if err != nil {
		h.log.WithError(err).Error("failed to fetch service request")
		http.Error(w, "Error fetching service request", http.StatusInternalServerError)
		return
	}
	if request == nil {
		http.Error(w, "Service request not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

// MyRequests lists the caller's requests, newest first.
func (h *Handler) MyRequests(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	requests, err := h.requests.ListByUser(r.Context(), caller.ID)
	if err != nil {
		h.log.WithError(err).Error("failed to list service requests")
		http.Error(w, "Error fetching service requests", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// ProviderServices lists requests assigned to the calling provider.
func (h *Handler) ProviderServices(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	requests, err := h.requests.ListByProvider(r.Context(), caller.ID)
	if err != nil {
		h.log.WithError(err).Error("failed to list provider services")
		http.Error(w, "Error fetching provider services", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

var statusEvents = map[models.Status]events.Type{
	models.StatusAccepted:  events.TypeRequestAccepted,
	models.StatusCompleted: events.TypeRequestCompleted,
	models.StatusCancelled: events.TypeRequestCancelled,
}

// UpdateServiceStatus applies a status transition after validating it
// against the lifecycle rules.
func (h *Handler) UpdateServiceStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if !models.ValidStatus(payload.Status) {
		http.Error(w, "Invalid status", http.StatusBadRequest)
		return
	}
	next := models.Status(payload.Status)

	request, err := h.requests.GetByID(r.Context(), id)
	if err != nil {
		h.log.WithError(err).Error("failed to fetch service request")
		http.Error(w, "Error updating service status", http.StatusInternalServerError)
		return
	}
	if request == nil {
		http.Error(w, "Service request not found", http.StatusNotFound)
		return
	}
	if !request.Status.CanTransitionTo(next) {
		http.Error(w, "Invalid status transition", http.StatusConflict)
		return
	}

	if err := h.requests.UpdateStatus(r.Context(), id, request.Status, next); err != nil {
		if errors.Is(err, database.ErrStatusChanged) {
			http.Error(w, "Invalid status transition", http.StatusConflict)
			return
		}
		h.log.WithError(err).Error("failed to update service status")
		http.Error(w, "Error updating service status", http.StatusInternalServerError)
		return
	}
	request.Status = next

	if eventType, ok := statusEvents[next]; ok {
		data := events.RequestData{
			RequestID:   request.ID,
			UserID:      request.UserID,
			ServiceType: request.ServiceType,
			Location:    request.Location,
			Coordinates: request.Coordinates,
		}
		if request.ProviderID != nil {
			data.ProviderID = *request.ProviderID
		}
		h.bus.Emit(events.NewEvent(eventType, data))
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "Status updated", "service": request})
}

// SubmitQuote records the calling provider's price for a request. The
// status does not change: acceptance is a separate customer action, so
// several providers can quote against each other.
func (h *Handler) SubmitQuote(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id := mux.Vars(r)["id"]

	var payload struct {
		QuotedPrice float64 `json:"quoted_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if payload.QuotedPrice <= 0 {
		http.Error(w, "Quoted price must be positive", http.StatusBadRequest)
		return
	}

	request, err := h.requests.GetByID(r.Context(), id)
	if err != nil {
		h.log.WithError(err).Error("failed to fetch service request")
		http.Error(w, "Error submitting quote", http.StatusInternalServerError)
		return
	}
	if request == nil {
		http.Error(w, "Service request not found", http.StatusNotFound)
		return
	}

	if err := h.requests.SubmitQuote(r.Context(), id, caller.ID, payload.QuotedPrice); err != nil {
		h.log.WithError(err).Error("failed to submit quote")
		http.Error(w, "Error submitting quote", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Quote submitted successfully"})
}

// AcceptQuote moves a pending request to accepted and binds the chosen
// provider.
func (h *Handler) AcceptQuote(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var payload struct {
		ProviderID string `json:"provider_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if payload.ProviderID == "" {
		http.Error(w, "Provider id is required", http.StatusBadRequest)
		return
	}

	if err := h.requests.AcceptQuote(r.Context(), id, payload.ProviderID); err != nil {
		if errors.Is(err, database.ErrNotPending) {
			http.Error(w, "Service request is not pending", http.StatusConflict)
			return
		}
		h.log.WithError(err).Error("failed to accept quote")
		http.Error(w, "Error accepting quote", http.StatusInternalServerError)
		return
	}

	request, err := h.requests.GetByID(r.Context(), id)
	if err != nil || request == nil {
		writeJSON(w, http.StatusOK, map[string]any{"message": "Quote accepted"})
		return
	}

	h.bus.Emit(events.NewEvent(events.TypeRequestAccepted, events.RequestData{
		RequestID:   request.ID,
		UserID:      request.UserID,
		ProviderID:  payload.ProviderID,
		ServiceType: request.ServiceType,
		Location:    request.Location,
		Coordinates: request.Coordinates,
	}))

	writeJSON(w, http.StatusOK, map[string]any{"message": "Quote accepted", "service": request})
}

// NearbyRequests lists pending requests within 50 km of the calling
// provider's position, nearest first.
func (h *Handler) NearbyRequests(w http.ResponseWriter, r *http.Request) {
	lat, lng, ok := queryCoordinates(r)
	if !ok {
		http.Error(w, "Latitude and longitude are required", http.StatusBadRequest)
		return
	}

	pending, err := h.requests.ListPendingWithCoordinates(r.Context())
	if err != nil {
		h.log.WithError(err).Error("failed to list pending requests")
		http.Error(w, "Error finding nearby requests", http.StatusInternalServerError)
		return
	}

	type nearbyRequest struct {
		models.ServiceRequest
		DistanceKm float64 `json:"distance_km"`
	}
	var nearby []nearbyRequest
	for _, req := range pending {
		d := geo.DistanceKm(lat, lng, req.Coordinates.Latitude, req.Coordinates.Longitude)
		if d <= matching.DefaultRadiusKm {
			nearby = append(nearby, nearbyRequest{ServiceRequest: req, DistanceKm: d})
		}
	}
	sort.Slice(nearby, func(i, j int) bool { return nearby[i].DistanceKm < nearby[j].DistanceKm })

	writeJSON(w, http.StatusOK, nearby)
}

func queryCoordinates(r *http.Request) (lat, lng float64, ok bool) {
	latStr := r.URL.Query().Get("latitude")
	lngStr := r.URL.Query().Get("longitude")
	if latStr == "" || lngStr == "" {
		return 0, 0, false
	}
	var err error
	lat, err = strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err = strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lng, true
}
