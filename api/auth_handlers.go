package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"towy-backend/auth"
	"towy-backend/models"
)

type signupPayload struct {
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Password     string          `json:"password"`
	Role         string          `json:"role"`
	Phone        string          `json:"phone"`
	BusinessName string          `json:"business_name"`
	Services     []string        `json:"services"`
	Location     json.RawMessage `json:"location"`
}

// Signup registers a customer or a provider, depending on role.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var payload signupPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	payload.Email = strings.TrimSpace(strings.ToLower(payload.Email))
	if payload.Email == "" || payload.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		h.log.WithError(err).Error("failed to hash password")
		http.Error(w, "Failed to create account", http.StatusInternalServerError)
		return
	}

	if payload.Role == models.RoleProvider {
		provider := models.Provider{
			ID:           uuid.New().String(),
			Email:        payload.Email,
			BusinessName: payload.BusinessName,
			PasswordHash: hash,
			Location:     models.ParseCoordinatesJSON(payload.Location),
			IsAvailable:  true,
			Services:     payload.Services,
			Phone:        payload.Phone,
			CreatedAt:    time.Now().UTC(),
			UpdatedAt:    time.Now().UTC(),
		}
		if provider.BusinessName == "" {
			provider.BusinessName = payload.Name
		}
		if len(provider.Services) == 0 {
			provider.Services = []string{string(models.ServiceTowing)}
		}
		if err := h.providers.Create(r.Context(), &provider); err != nil {
			if isUniqueViolation(err) {
				http.Error(w, "Provider already exists", http.StatusConflict)
				return
			}
			h.log.WithError(err).Error("failed to create provider")
			http.Error(w, "Failed to create account", http.StatusInternalServerError)
			return
		}
		h.syncGeoIndex(r.Context(), &provider)
		token, err := auth.GenerateToken(h.jwtSecret, auth.Identity{ID: provider.ID, Role: models.RoleProvider}, h.tokenTTL)
		if err != nil {
			h.log.WithError(err).Error("failed to sign token")
			http.Error(w, "Failed to create account", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"token": token, "provider": provider})
		return
	}

	user := models.User{
		ID:           uuid.New().String(),
		Name:         payload.Name,
		Email:        payload.Email,
		PasswordHash: hash,
		Role:         models.RoleCustomer,
		Phone:        payload.Phone,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.users.Create(r.Context(), &user); err != nil {
		if isUniqueViolation(err) {
			http.Error(w, "User already exists", http.StatusConflict)
			return
		}
		h.log.WithError(err).Error("failed to create user")
		http.Error(w, "Failed to create account", http.StatusInternalServerError)
		return
	}
	token, err := auth.GenerateToken(h.jwtSecret, auth.Identity{ID: user.ID, Role: models.RoleCustomer}, h.tokenTTL)
	if err != nil {
		h.log.WithError(err).Error("failed to sign token")
		http.Error(w, "Failed to create account", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"token": token, "user": user})
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Login authenticates a customer or provider and returns a bearer
// token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	payload.Email = strings.TrimSpace(strings.ToLower(payload.Email))

	if payload.Role == models.RoleProvider {
		provider, err := h.providers.GetByEmail(r.Context(), payload.Email)
		if err != nil {
			h.log.WithError(err).Error("provider lookup failed")
			http.Error(w, "Login failed", http.StatusInternalServerError)
			return
		}
		if provider == nil || !auth.CheckPassword(provider.PasswordHash, payload.Password) {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		token, err := auth.GenerateToken(h.jwtSecret, auth.Identity{ID: provider.ID, Role: models.RoleProvider}, h.tokenTTL)
		if err != nil {
			h.log.WithError(err).Error("failed to sign token")
			http.Error(w, "Login failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": token, "provider": provider})
		return
	}

	user, err := h.users.GetByEmail(r.Context(), payload.Email)
	if err != nil {
		h.log.WithError(err).Error("user lookup failed")
		http.Error(w, "Login failed", http.StatusInternalServerError)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, payload.Password) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	token, err := auth.GenerateToken(h.jwtSecret, auth.Identity{ID: user.ID, Role: user.Role}, h.tokenTTL)
	if err != nil {
		h.log.WithError(err).Error("failed to sign token")
		http.Error(w, "Login failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

func isUniqueViolation(err error) bool {
	var pgErr *pq.Error
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
