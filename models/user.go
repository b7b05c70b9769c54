package models

import "time"

// User roles.
const (
	RoleCustomer = "customer"
	RoleProvider = "provider"
)

// User is a customer account. Providers have their own entity because
// they carry geospatial and service-catalog state.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Phone        string    `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
