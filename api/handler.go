package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"towy-backend/auth"
	"towy-backend/events"
	"towy-backend/geo"
	"towy-backend/matching"
	"towy-backend/models"
)

// UserStore is the persistence surface the handlers need for customer
// accounts.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// ProviderStore is the persistence surface for provider accounts.
type ProviderStore interface {
	Create(ctx context.Context, p *models.Provider) error
	GetByEmail(ctx context.Context, email string) (*models.Provider, error)
	GetByID(ctx context.Context, id string) (*models.Provider, error)
	Update(ctx context.Context, id, businessName string, services []string, phone string) (*models.Provider, error)
	SetAvailability(ctx context.Context, id string, available bool) (*models.Provider, error)
	UpdateLocation(ctx context.Context, id string, c models.Coordinates) (*models.Provider, error)
}

// RequestStore is the persistence surface for service requests.
type RequestStore interface {
	Create(ctx context.Context, r *models.ServiceRequest) error
	GetByID(ctx context.Context, id string) (*models.ServiceRequest, error)
	ListByUser(ctx context.Context, userID string) ([]models.ServiceRequest, error)
	ListByProvider(ctx context.Context, providerID string) ([]models.ServiceRequest, error)
	ListPendingWithCoordinates(ctx context.Context) ([]models.ServiceRequest, error)
	UpdateStatus(ctx context.Context, id string, from, to models.Status) error
	SubmitQuote(ctx context.Context, id, providerID string, price float64) error
	AcceptQuote(ctx context.Context, id, providerID string) error
}

// GeoIndex mirrors provider availability and location changes into
// whatever fast-lookup structure the configured locator reads (Redis
// geohash cells or the in-memory R-tree).
type GeoIndex interface {
	Add(ctx context.Context, p models.Provider) error
	Remove(ctx context.Context, id string) error
}

// Deps bundles everything the HTTP handlers depend on.
type Deps struct {
	Log       *logrus.Logger
	Users     UserStore
	Providers ProviderStore
	Requests  RequestStore
	GeoIndex  GeoIndex
	Locator   matching.Locator
	Bus       *events.Bus
	Geocoder  geo.Geocoder
	JWTSecret string
	TokenTTL  time.Duration
}

type Handler struct {
	log       *logrus.Logger
	users     UserStore
	providers ProviderStore
	requests  RequestStore
	geoIndex  GeoIndex
	locator   matching.Locator
	bus       *events.Bus
	geocoder  geo.Geocoder
	jwtSecret string
	tokenTTL  time.Duration
}

func NewHandler(d Deps) *Handler {
	ttl := d.TokenTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Handler{
		log:       d.Log,
		users:     d.Users,
		providers: d.Providers,
		requests:  d.Requests,
		geoIndex:  d.GeoIndex,
		locator:   d.Locator,
		bus:       d.Bus,
		geocoder:  d.Geocoder,
		jwtSecret: d.JWTSecret,
		tokenTTL:  ttl,
	}
}

func (h *Handler) identity(r *http.Request) (auth.Identity, bool) {
	return auth.FromContext(r.Context())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// syncGeoIndex pushes the provider's current state into the geo index,
// logging instead of failing: the store is the source of truth and the
// index converges on the next update.
func (h *Handler) syncGeoIndex(ctx context.Context, p *models.Provider) {
	if h.geoIndex == nil || p == nil {
		return
	}
	var err error
	if p.IsAvailable && p.HasLocation() {
		err = h.geoIndex.Add(ctx, *p)
	} else {
		err = h.geoIndex.Remove(ctx, p.ID)
	}
	if err != nil {
		h.log.WithError(err).WithField("provider_id", p.ID).Warn("failed to sync provider geo index")
	}
}
