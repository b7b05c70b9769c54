package models

import "time"

// ServiceType enumerates the kinds of roadside assistance a customer can
// request.
type ServiceType string

const (
	ServiceTowing             ServiceType = "towing"
	ServiceRoadsideAssistance ServiceType = "roadside_assistance"
	ServiceVehicleRecovery    ServiceType = "vehicle_recovery"
	ServiceBatteryJump        ServiceType = "battery_jump"
	ServiceTireChange         ServiceType = "tire_change"
	ServiceGasDelivery        ServiceType = "gas_delivery"
	ServiceLockout            ServiceType = "lockout"
	ServiceMechanic           ServiceType = "mechanic"
)

var serviceTypes = map[ServiceType]bool{
	ServiceTowing:             true,
	ServiceRoadsideAssistance: true,
	ServiceVehicleRecovery:    true,
	ServiceBatteryJump:        true,
	ServiceTireChange:         true,
	ServiceGasDelivery:        true,
	ServiceLockout:            true,
	ServiceMechanic:           true,
}

// ValidServiceType reports whether s is one of the known service types.
func ValidServiceType(s string) bool {
	return serviceTypes[ServiceType(s)]
}

// Status is the lifecycle state of a service request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// transitions lists the allowed next states. completed and cancelled are
// terminal.
var transitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusInProgress, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

// ValidStatus reports whether s names a known status.
func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether a request in state s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ServiceRequest is a customer's request for roadside assistance.
// Requests are never deleted; completed and cancelled are terminal.
type ServiceRequest struct {
	ID                string       `json:"id"`
	UserID            string       `json:"user_id"`
	ServiceType       ServiceType  `json:"service_type"`
	Location          string       `json:"location"`
	Coordinates       *Coordinates `json:"coordinates,omitempty"`
	Description       string       `json:"description,omitempty"`
	VehicleType       string       `json:"vehicle_type,omitempty"`
	Status            Status       `json:"status"`
	QuotedPrice       *float64     `json:"quoted_price,omitempty"`
	ProviderID        *string      `json:"provider_id,omitempty"`
	NotifiedProviders []string     `json:"notified_providers,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}
