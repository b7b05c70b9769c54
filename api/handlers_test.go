package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"towy-backend/auth"
	"towy-backend/database"
	"towy-backend/events"
	"towy-backend/matching"
	"towy-backend/models"
)

type fakeUserStore struct {
	byEmail map[string]*models.User
	created []*models.User
}

func (f *fakeUserStore) Create(_ context.Context, u *models.User) error {
	f.created = append(f.created, u)
	return nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return f.byEmail[email], nil
}

type fakeProviderStore struct {
	byID    map[string]*models.Provider
	byEmail map[string]*models.Provider
	created []*models.Provider
}

func (f *fakeProviderStore) Create(_ context.Context, p *models.Provider) error {
	f.created = append(f.created, p)
	return nil
}

func (f *fakeProviderStore) GetByEmail(_ context.Context, email string) (*models.Provider, error) {
	return f.byEmail[email], nil
}

func (f *fakeProviderStore) GetByID(_ context.Context, id string) (*models.Provider, error) {
	return f.byID[id], nil
}

func (f *fakeProviderStore) Update(_ context.Context, id, businessName string, services []string, phone string) (*models.Provider, error) {
	p := f.byID[id]
	if p == nil {
		return nil, nil
	}
	if businessName != "" {
		p.BusinessName = businessName
	}
	if services != nil {
		p.Services = services
	}
	if phone != "" {
		p.Phone = phone
	}
	return p, nil
}

func (f *fakeProviderStore) SetAvailability(_ context.Context, id string, available bool) (*models.Provider, error) {
	p := f.byID[id]
	if p == nil {
		return nil, nil
	}
	p.IsAvailable = available
	return p, nil
}

func (f *fakeProviderStore) UpdateLocation(_ context.Context, id string, c models.Coordinates) (*models.Provider, error) {
	p := f.byID[id]
	if p == nil {
		return nil, nil
	}
	p.Location = &c
	return p, nil
}

type fakeRequestStore struct {
	byID    map[string]*models.ServiceRequest
	created []*models.ServiceRequest
	quotes  map[string]float64
}

func (f *fakeRequestStore) Create(_ context.Context, r *models.ServiceRequest) error {
	f.created = append(f.created, r)
	if f.byID == nil {
		f.byID = make(map[string]*models.ServiceRequest)
	}
	f.byID[r.ID] = r
	return nil
}

func (f *fakeRequestStore) GetByID(_ context.Context, id string) (*models.ServiceRequest, error) {
	return f.byID[id], nil
}

func (f *fakeRequestStore) ListByUser(_ context.Context, userID string) ([]models.ServiceRequest, error) {
	var out []models.ServiceRequest
	for _, r := range f.byID {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRequestStore) ListByProvider(_ context.Context, providerID string) ([]models.ServiceRequest, error) {
	var out []models.ServiceRequest
	for _, r := range f.byID {
		if r.ProviderID != nil && *r.ProviderID == providerID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRequestStore) ListPendingWithCoordinates(_ context.Context) ([]models.ServiceRequest, error) {
	var out []models.ServiceRequest
	for _, r := range f.byID {
		if r.Status == models.StatusPending && r.Coordinates != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRequestStore) UpdateStatus(_ context.Context, id string, from, to models.Status) error {
	r := f.byID[id]
	if r == nil || r.Status != from {
		return database.ErrStatusChanged
	}
	r.Status = to
	return nil
}

func (f *fakeRequestStore) SubmitQuote(_ context.Context, id, providerID string, price float64) error {
	if f.quotes == nil {
		f.quotes = make(map[string]float64)
	}
	f.quotes[id] = price
	if r := f.byID[id]; r != nil {
		r.QuotedPrice = &price
		r.ProviderID = &providerID
	}
	return nil
}

func (f *fakeRequestStore) AcceptQuote(_ context.Context, id, providerID string) error {
	r := f.byID[id]
	if r == nil || r.Status != models.StatusPending {
		return database.ErrNotPending
	}
	r.Status = models.StatusAccepted
	r.ProviderID = &providerID
	return nil
}

type fakeLocator struct {
	matches []matching.Match
}

func (f fakeLocator) FindNearby(context.Context, float64, float64, float64, models.ServiceType) ([]matching.Match, error) {
	return f.matches, nil
}

type testEnv struct {
	handler   http.Handler
	bus       *events.Bus
	users     *fakeUserStore
	providers *fakeProviderStore
	requests  *fakeRequestStore
	emitted   *[]events.Event
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	bus := events.NewBus(log)
	var emitted []events.Event
	bus.SubscribeToAll(func(e events.Event) { emitted = append(emitted, e) })

	users := &fakeUserStore{byEmail: map[string]*models.User{}}
	providers := &fakeProviderStore{byID: map[string]*models.Provider{}, byEmail: map[string]*models.Provider{}}
	requests := &fakeRequestStore{byID: map[string]*models.ServiceRequest{}}

	h := NewHandler(Deps{
		Log:       log,
		Users:     users,
		Providers: providers,
		Requests:  requests,
		Locator:   fakeLocator{},
		Bus:       bus,
		JWTSecret: "test-secret",
	})
	return &testEnv{
		handler:   h.Routes(),
		bus:       bus,
		users:     users,
		providers: providers,
		requests:  requests,
		emitted:   &emitted,
	}
}

func (env *testEnv) token(t *testing.T, id, role string) string {
	t.Helper()
	token, err := auth.GenerateToken("test-secret", auth.Identity{ID: id, Role: role}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateServiceRequest(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1", models.RoleCustomer)

	rec := env.do(t, "POST", "/services/request", token, map[string]any{
		"service_type": "towing",
		"location":     "5th and Main",
		"coordinates":  "33.79, -118.13",
		"vehicle_type": "sedan",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}

	if len(env.requests.created) != 1 {
		t.Fatalf("%d requests created", len(env.requests.created))
	}
	created := env.requests.created[0]
	if created.UserID != "user-1" || created.Status != models.StatusPending {
		t.Errorf("created = %+v", created)
	}
	if created.Coordinates == nil || created.Coordinates.Latitude != 33.79 {
		t.Errorf("coordinates not parsed: %v", created.Coordinates)
	}

	if len(*env.emitted) != 1 {
		t.Fatalf("%d events emitted", len(*env.emitted))
	}
	e := (*env.emitted)[0]
	if e.Type != events.TypeRequestCreated {
		t.Errorf("event type = %s", e.Type)
	}
	data := e.Data.(events.RequestData)
	if data.RequestID != created.ID || data.Coordinates == nil {
		t.Errorf("event data = %+v", data)
	}
}

func TestCreateServiceRequestInvalidType(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1", models.RoleCustomer)

	rec := env.do(t, "POST", "/services/request", token, map[string]any{"service_type": "teleport"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
	if len(*env.emitted) != 0 {
		t.Error("event emitted for rejected request")
	}
}

func TestCreateServiceRequestUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/services/request", "", map[string]any{"service_type": "towing"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status %d, want 401", rec.Code)
	}
}

func TestQuoteFlow(t *testing.T) {
	env := newTestEnv(t)
	env.requests.byID["req-1"] = &models.ServiceRequest{
		ID:     "req-1",
		UserID: "user-1",
		Status: models.StatusPending,
	}

	providerToken := env.token(t, "prov-1", models.RoleProvider)
	rec := env.do(t, "POST", "/services/req-1/quote", providerToken, map[string]any{"quoted_price": 120.0})
	if rec.Code != http.StatusOK {
		t.Fatalf("quote: status %d, body %s", rec.Code, rec.Body.String())
	}
	if env.requests.quotes["req-1"] != 120.0 {
		t.Errorf("quote not stored: %v", env.requests.quotes)
	}
	if env.requests.byID["req-1"].Status != models.StatusPending {
		t.Error("quote submission changed the request status")
	}

	// Customers cannot quote.
	customerToken := env.token(t, "user-1", models.RoleCustomer)
	rec = env.do(t, "POST", "/services/req-1/quote", customerToken, map[string]any{"quoted_price": 90.0})
	if rec.Code != http.StatusForbidden {
		t.Errorf("customer quote: status %d, want 403", rec.Code)
	}

	rec = env.do(t, "POST", "/services/req-1/accept-quote", customerToken, map[string]any{"provider_id": "prov-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("accept: status %d, body %s", rec.Code, rec.Body.String())
	}
	req := env.requests.byID["req-1"]
	if req.Status != models.StatusAccepted || req.ProviderID == nil || *req.ProviderID != "prov-1" {
		t.Errorf("request after accept = %+v", req)
	}

	var accepted bool
	for _, e := range *env.emitted {
		if e.Type == events.TypeRequestAccepted {
			accepted = true
		}
	}
	if !accepted {
		t.Error("request_accepted event not emitted")
	}

	// A second accept conflicts.
	rec = env.do(t, "POST", "/services/req-1/accept-quote", customerToken, map[string]any{"provider_id": "prov-2"})
	if rec.Code != http.StatusConflict {
		t.Errorf("second accept: status %d, want 409", rec.Code)
	}
}

func TestUpdateServiceStatusInvalidTransition(t *testing.T) {
	env := newTestEnv(t)
	env.requests.byID["req-1"] = &models.ServiceRequest{
		ID:     "req-1",
		Status: models.StatusCompleted,
	}
	token := env.token(t, "user-1", models.RoleCustomer)

	rec := env.do(t, "PUT", "/services/req-1/status", token, map[string]any{"status": "in_progress"})
	if rec.Code != http.StatusConflict {
		t.Errorf("status %d, want 409", rec.Code)
	}

	rec = env.do(t, "PUT", "/services/req-1/status", token, map[string]any{"status": "bogus"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
}

// raceyRequestStore simulates a concurrent status change landing
// between the handler's read and its write.
type raceyRequestStore struct {
	*fakeRequestStore
	sneak models.Status
}

func (f *raceyRequestStore) GetByID(ctx context.Context, id string) (*models.ServiceRequest, error) {
	r, err := f.fakeRequestStore.GetByID(ctx, id)
	if r != nil && f.sneak != "" {
		snapshot := *r
		f.byID[id].Status = f.sneak
		return &snapshot, err
	}
	return r, err
}

func TestUpdateServiceStatusLostRaceConflicts(t *testing.T) {
	env := newTestEnv(t)
	store := &raceyRequestStore{fakeRequestStore: env.requests, sneak: models.StatusCancelled}
	env.requests.byID["req-1"] = &models.ServiceRequest{
		ID:     "req-1",
		UserID: "user-1",
		Status: models.StatusPending,
	}

	log := logrus.New()
	log.SetOutput(io.Discard)
	h := NewHandler(Deps{
		Log:       log,
		Users:     env.users,
		Providers: env.providers,
		Requests:  store,
		Locator:   fakeLocator{},
		Bus:       events.NewBus(log),
		JWTSecret: "test-secret",
	})
	env.handler = h.Routes()

	token := env.token(t, "user-1", models.RoleCustomer)
	rec := env.do(t, "PUT", "/services/req-1/status", token, map[string]any{"status": "accepted"})
	if rec.Code != http.StatusConflict {
		t.Errorf("status %d, want 409 when the transition loses the race", rec.Code)
	}
	if env.requests.byID["req-1"].Status != models.StatusCancelled {
		t.Errorf("racing status overwritten: %s", env.requests.byID["req-1"].Status)
	}
}

func TestUpdateServiceStatusEmitsLifecycleEvent(t *testing.T) {
	env := newTestEnv(t)
	env.requests.byID["req-1"] = &models.ServiceRequest{
		ID:     "req-1",
		UserID: "user-1",
		Status: models.StatusInProgress,
	}
	token := env.token(t, "user-1", models.RoleCustomer)

	rec := env.do(t, "PUT", "/services/req-1/status", token, map[string]any{"status": "completed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	if len(*env.emitted) != 1 || (*env.emitted)[0].Type != events.TypeRequestCompleted {
		t.Errorf("events = %+v", *env.emitted)
	}
}

func TestSetAvailabilityEmitsProviderEvent(t *testing.T) {
	env := newTestEnv(t)
	env.providers.byID["prov-1"] = &models.Provider{
		ID:          "prov-1",
		IsAvailable: true,
		Services:    []string{"towing"},
	}
	token := env.token(t, "prov-1", models.RoleProvider)

	rec := env.do(t, "PUT", "/providers/availability", token, map[string]any{"is_available": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	if env.providers.byID["prov-1"].IsAvailable {
		t.Error("availability not updated")
	}
	if len(*env.emitted) != 1 || (*env.emitted)[0].Type != events.TypeProviderUnavailable {
		t.Errorf("events = %+v", *env.emitted)
	}
}

func TestUpdateLocationValidatesCoordinates(t *testing.T) {
	env := newTestEnv(t)
	env.providers.byID["prov-1"] = &models.Provider{ID: "prov-1"}
	token := env.token(t, "prov-1", models.RoleProvider)

	rec := env.do(t, "PUT", "/providers/location", token, map[string]any{"latitude": 95.0, "longitude": 0.0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}

	rec = env.do(t, "PUT", "/providers/location", token, map[string]any{"latitude": 33.79, "longitude": -118.13})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	if len(*env.emitted) != 1 || (*env.emitted)[0].Type != events.TypeProviderLocationUpdated {
		t.Errorf("events = %+v", *env.emitted)
	}
}

func TestNearbyRequests(t *testing.T) {
	env := newTestEnv(t)
	env.requests.byID["near"] = &models.ServiceRequest{
		ID:          "near",
		Status:      models.StatusPending,
		Coordinates: &models.Coordinates{Latitude: 33.8, Longitude: -118.13},
	}
	env.requests.byID["far"] = &models.ServiceRequest{
		ID:          "far",
		Status:      models.StatusPending,
		Coordinates: &models.Coordinates{Latitude: 40.7, Longitude: -74.0},
	}
	token := env.token(t, "prov-1", models.RoleProvider)

	rec := env.do(t, "GET", "/providers/requests/nearby?latitude=33.79&longitude=-118.13", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	var got []struct {
		ID         string  `json:"id"`
		DistanceKm float64 `json:"distance_km"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "near" {
		t.Errorf("got %+v", got)
	}

	rec = env.do(t, "GET", "/providers/requests/nearby", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing coordinates: status %d, want 400", rec.Code)
	}
}

func TestSignupAndLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/auth/signup", "", map[string]any{
		"name":     "Sam",
		"email":    "Sam@Example.com",
		"password": "hunter2",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: status %d, body %s", rec.Code, rec.Body.String())
	}
	if len(env.users.created) != 1 {
		t.Fatalf("%d users created", len(env.users.created))
	}
	user := env.users.created[0]
	if user.Email != "sam@example.com" {
		t.Errorf("email not normalized: %q", user.Email)
	}
	if user.PasswordHash == "hunter2" {
		t.Error("password stored as plaintext")
	}

	env.users.byEmail[user.Email] = user
	rec = env.do(t, "POST", "/auth/login", "", map[string]any{
		"email":    "sam@example.com",
		"password": "hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	id, err := auth.ParseToken("test-secret", resp.Token)
	if err != nil {
		t.Fatalf("login token invalid: %v", err)
	}
	if id.ID != user.ID || id.Role != models.RoleCustomer {
		t.Errorf("token identity = %+v", id)
	}

	rec = env.do(t, "POST", "/auth/login", "", map[string]any{
		"email":    "sam@example.com",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password: status %d, want 401", rec.Code)
	}
}

func TestProviderSignupDefaults(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/auth/signup", "", map[string]any{
		"name":     "Ace Towing",
		"email":    "ace@example.com",
		"password": "hunter2",
		"role":     "provider",
		"location": map[string]any{"lat": 33.79, "lng": -118.13},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	if len(env.providers.created) != 1 {
		t.Fatalf("%d providers created", len(env.providers.created))
	}
	p := env.providers.created[0]
	if p.BusinessName != "Ace Towing" {
		t.Errorf("business name default: %q", p.BusinessName)
	}
	if len(p.Services) != 1 || p.Services[0] != "towing" {
		t.Errorf("services default: %v", p.Services)
	}
	if p.Location == nil || p.Location.Latitude != 33.79 {
		t.Errorf("location not parsed: %v", p.Location)
	}
	if !p.IsAvailable {
		t.Error("new providers should start available")
	}
}
