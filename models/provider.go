package models

import "time"

// Wildcard service tags. A provider carrying either one matches every
// requested service type.
const (
	ServiceTagAll     = "all"
	ServiceTagGeneral = "general"
)

// Provider is a roadside-assistance business that can be matched to
// requests. Location is optional; a provider without one can never be
// found by proximity search.
type Provider struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	BusinessName string       `json:"business_name"`
	PasswordHash string       `json:"-"`
	Location     *Coordinates `json:"location,omitempty"`
	IsAvailable  bool         `json:"is_available"`
	Services     []string     `json:"services"`
	Phone        string       `json:"phone,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// HasLocation reports whether the provider can participate in proximity
// matching.
func (p Provider) HasLocation() bool {
	return p.Location != nil
}
