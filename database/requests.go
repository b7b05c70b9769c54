package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"towy-backend/models"
)

// ErrNotPending is returned when a quote acceptance races with another
// status change.
var ErrNotPending = errors.New("service request is not pending")

// ErrStatusChanged is returned when a status update loses a race: the
// request no longer holds the status the transition was validated
// against.
var ErrStatusChanged = errors.New("service request status changed concurrently")

type RequestStore struct {
	db *sql.DB
}

func NewRequestStore(db *sql.DB) *RequestStore {
	return &RequestStore{db: db}
}

const requestColumns = `id, user_id, service_type, location, latitude, longitude, description, vehicle_type, status, quoted_price, provider_id, notified_providers, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (*models.ServiceRequest, error) {
	var r models.ServiceRequest
	var lat, lng sql.NullFloat64
	var price sql.NullFloat64
	var providerID sql.NullString
	err := row.Scan(
		&r.ID, &r.UserID, &r.ServiceType, &r.Location,
		&lat, &lng, &r.Description, &r.VehicleType, &r.Status,
		&price, &providerID, pq.Array(&r.NotifiedProviders),
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		r.Coordinates = &models.Coordinates{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	if price.Valid {
		r.QuotedPrice = &price.Float64
	}
	if providerID.Valid {
		r.ProviderID = &providerID.String
	}
	return &r, nil
}

func (s *RequestStore) Create(ctx context.Context, r *models.ServiceRequest) error {
	lat, lng := locationArgs(r.Coordinates)
	query := `
INSERT INTO service_requests (id, user_id, service_type, location, latitude, longitude, description, vehicle_type, status, notified_providers, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.UserID, r.ServiceType, r.Location, lat, lng,
		r.Description, r.VehicleType, r.Status, pq.Array(r.NotifiedProviders),
		r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create service request: %w", err)
	}
	return nil
}

func (s *RequestStore) GetByID(ctx context.Context, id string) (*models.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE id = $1;`
	r, err := scanRequest(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get service request: %w", err)
	}
	return r, nil
}

func (s *RequestStore) ListByUser(ctx context.Context, userID string) ([]models.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE user_id = $1 ORDER BY created_at DESC;`
	return s.list(ctx, query, userID)
}

func (s *RequestStore) ListByProvider(ctx context.Context, providerID string) ([]models.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE provider_id = $1 ORDER BY created_at DESC;`
	return s.list(ctx, query, providerID)
}

// ListPendingWithCoordinates returns pending requests that carry
// coordinates, for the provider-facing nearby-requests browse.
func (s *RequestStore) ListPendingWithCoordinates(ctx context.Context) ([]models.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests
WHERE status = $1 AND latitude IS NOT NULL AND longitude IS NOT NULL
ORDER BY created_at DESC;`
	return s.list(ctx, query, models.StatusPending)
}

func (s *RequestStore) list(ctx context.Context, query string, args ...any) ([]models.ServiceRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list service requests: %w", err)
	}
	defer rows.Close()

	var result []models.ServiceRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service request: %w", err)
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateStatus applies a transition guarded on the status it was
// validated against, so two racing updates cannot both win.
func (s *RequestStore) UpdateStatus(ctx context.Context, id string, from, to models.Status) error {
	query := `UPDATE service_requests SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4;`
	res, err := s.db.ExecContext(ctx, query, id, to, time.Now().UTC(), from)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	if n == 0 {
		return ErrStatusChanged
	}
	return nil
}

// SubmitQuote records a provider's price and tentatively binds the
// provider. The status stays untouched so competing quotes can arrive
// until the customer accepts one.
func (s *RequestStore) SubmitQuote(ctx context.Context, id, providerID string, price float64) error {
	query := `
UPDATE service_requests
SET quoted_price = $2, provider_id = $3, updated_at = $4
WHERE id = $1;
`
	_, err := s.db.ExecContext(ctx, query, id, price, providerID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("submit quote: %w", err)
	}
	return nil
}

// AcceptQuote moves a pending request to accepted and binds the chosen
// provider. Anything but pending fails with ErrNotPending.
func (s *RequestStore) AcceptQuote(ctx context.Context, id, providerID string) error {
	query := `
UPDATE service_requests
SET status = $2, provider_id = $3, updated_at = $4
WHERE id = $1 AND status = $5;
`
	res, err := s.db.ExecContext(ctx, query, id, models.StatusAccepted, providerID, time.Now().UTC(), models.StatusPending)
	if err != nil {
		return fmt.Errorf("accept quote: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("accept quote: %w", err)
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

// MarkNotified appends provider ids to the request's notification
// history, deduplicating in SQL.
func (s *RequestStore) MarkNotified(ctx context.Context, id string, providerIDs []string) error {
	if len(providerIDs) == 0 {
		return nil
	}
	query := `
UPDATE service_requests
SET notified_providers = (
    SELECT ARRAY(SELECT DISTINCT e FROM unnest(notified_providers || $2::text[]) AS e)
),
    updated_at = $3
WHERE id = $1;
`
	_, err := s.db.ExecContext(ctx, query, id, pq.Array(providerIDs), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark notified providers: %w", err)
	}
	return nil
}
