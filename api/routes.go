package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"towy-backend/auth"
	"towy-backend/models"
)

func (h *Handler) Routes() http.Handler {
	router := mux.NewRouter()

	// Public endpoints
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.HandleFunc("/auth/signup", h.Signup).Methods("POST")
	router.HandleFunc("/auth/login", h.Login).Methods("POST")

	authed := router.NewRoute().Subrouter()
	authed.Use(auth.Middleware(h.jwtSecret))

	// Service request endpoints
	authed.HandleFunc("/services/request", h.CreateServiceRequest).Methods("POST")
	authed.HandleFunc("/services/my-requests", h.MyRequests).Methods("GET")
	authed.HandleFunc("/services/{id}", h.GetServiceRequest).Methods("GET")
	authed.HandleFunc("/services/{id}/status", h.UpdateServiceStatus).Methods("PUT")
	authed.HandleFunc("/services/{id}/quote",
		auth.RequireRole(models.RoleProvider, h.SubmitQuote)).Methods("POST")
	authed.HandleFunc("/services/{id}/accept-quote",
		auth.RequireRole(models.RoleCustomer, h.AcceptQuote)).Methods("POST")

	// Provider endpoints
	authed.HandleFunc("/providers/nearby", h.NearbyProviders).Methods("GET")
	authed.HandleFunc("/providers/requests/nearby",
		auth.RequireRole(models.RoleProvider, h.NearbyRequests)).Methods("GET")
	authed.HandleFunc("/providers/services",
		auth.RequireRole(models.RoleProvider, h.ProviderServices)).Methods("GET")
	authed.HandleFunc("/providers/profile",
		auth.RequireRole(models.RoleProvider, h.UpdateProvider)).Methods("PUT")
	authed.HandleFunc("/providers/availability",
		auth.RequireRole(models.RoleProvider, h.SetAvailability)).Methods("PUT")
	authed.HandleFunc("/providers/location",
		auth.RequireRole(models.RoleProvider, h.UpdateLocation)).Methods("PUT")
	authed.HandleFunc("/providers/{id}", h.GetProvider).Methods("GET")

	// Add CORS support
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	return cors(router)
}
