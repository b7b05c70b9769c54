package events

import (
	"time"

	"github.com/google/uuid"

	"towy-backend/models"
)

// Type names a domain event. The set is closed: request lifecycle,
// provider availability/location, and notification outcomes.
type Type string

const (
	TypeRequestCreated   Type = "request_created"
	TypeRequestAccepted  Type = "request_accepted"
	TypeRequestCompleted Type = "request_completed"
	TypeRequestCancelled Type = "request_cancelled"

	TypeProviderAvailable       Type = "provider_available"
	TypeProviderUnavailable     Type = "provider_unavailable"
	TypeProviderLocationUpdated Type = "provider_location_updated"

	TypeNotificationSend      Type = "notification_send"
	TypeNotificationDelivered Type = "notification_delivered"
	TypeNotificationFailed    Type = "notification_failed"
)

// Event is an ephemeral value: created by a publisher, handed to the
// subscribers registered at emit time, never stored or replayed.
// Data holds the payload struct matching the event type.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// NewEvent builds an event with a fresh id and timestamp.
func NewEvent(t Type, data any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// RequestData is the payload for request lifecycle events.
type RequestData struct {
	RequestID   string              `json:"request_id"`
	UserID      string              `json:"user_id"`
	ProviderID  string              `json:"provider_id,omitempty"`
	ServiceType models.ServiceType  `json:"service_type"`
	Location    string              `json:"location"`
	Coordinates *models.Coordinates `json:"coordinates,omitempty"`
	Description string              `json:"description,omitempty"`
	VehicleType string              `json:"vehicle_type,omitempty"`
}

// ProviderData is the payload for provider availability and location
// events.
type ProviderData struct {
	ProviderID  string              `json:"provider_id"`
	Coordinates *models.Coordinates `json:"coordinates,omitempty"`
	Services    []string            `json:"services,omitempty"`
}

// NotificationData is the payload for notification outcome events. Meta
// carries per-batch detail such as the originating request id and the
// sent/failed counts.
type NotificationData struct {
	UserID  string         `json:"user_id"`
	Message string         `json:"message"`
	Channel string         `json:"channel"`
	Meta    map[string]any `json:"meta,omitempty"`
}
