package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"towy-backend/models"
)

type ProviderStore struct {
	db *sql.DB
}

func NewProviderStore(db *sql.DB) *ProviderStore {
	return &ProviderStore{db: db}
}

const providerColumns = `id, email, business_name, password_hash, latitude, longitude, is_available, services, phone, created_at, updated_at`

func scanProvider(row interface{ Scan(...any) error }) (*models.Provider, error) {
	var p models.Provider
	var lat, lng sql.NullFloat64
	err := row.Scan(
		&p.ID, &p.Email, &p.BusinessName, &p.PasswordHash,
		&lat, &lng, &p.IsAvailable, pq.Array(&p.Services), &p.Phone,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		p.Location = &models.Coordinates{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	return &p, nil
}

func locationArgs(c *models.Coordinates) (lat, lng sql.NullFloat64) {
	if c == nil {
		return
	}
	lat = sql.NullFloat64{Float64: c.Latitude, Valid: true}
	lng = sql.NullFloat64{Float64: c.Longitude, Valid: true}
	return
}

func (s *ProviderStore) Create(ctx context.Context, p *models.Provider) error {
	lat, lng := locationArgs(p.Location)
	query := `
INSERT INTO providers (id, email, business_name, password_hash, latitude, longitude, is_available, services, phone, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Email, p.BusinessName, p.PasswordHash,
		lat, lng, p.IsAvailable, pq.Array(p.Services), p.Phone,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}
	return nil
}

func (s *ProviderStore) GetByEmail(ctx context.Context, email string) (*models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE email = $1;`
	p, err := scanProvider(s.db.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get provider by email: %w", err)
	}
	return p, nil
}

func (s *ProviderStore) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE id = $1;`
	p, err := scanProvider(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get provider by id: %w", err)
	}
	return p, nil
}

// Update overwrites the mutable profile fields. Nil slices and empty
// strings are kept as-is via COALESCE/NULLIF so partial updates work.
func (s *ProviderStore) Update(ctx context.Context, id string, businessName string, services []string, phone string) (*models.Provider, error) {
	query := `
UPDATE providers
SET business_name = COALESCE(NULLIF($2, ''), business_name),
    services      = COALESCE($3, services),
    phone         = COALESCE(NULLIF($4, ''), phone),
    updated_at    = $5
WHERE id = $1
RETURNING ` + providerColumns + `;`
	var servicesArg any
	if services != nil {
		servicesArg = pq.Array(services)
	}
	p, err := scanProvider(s.db.QueryRowContext(ctx, query, id, businessName, servicesArg, phone, time.Now().UTC()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update provider: %w", err)
	}
	return p, nil
}

func (s *ProviderStore) SetAvailability(ctx context.Context, id string, available bool) (*models.Provider, error) {
	query := `
UPDATE providers
SET is_available = $2, updated_at = $3
WHERE id = $1
RETURNING ` + providerColumns + `;`
	p, err := scanProvider(s.db.QueryRowContext(ctx, query, id, available, time.Now().UTC()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("set provider availability: %w", err)
	}
	return p, nil
}

func (s *ProviderStore) UpdateLocation(ctx context.Context, id string, c models.Coordinates) (*models.Provider, error) {
	query := `
UPDATE providers
SET latitude = $2, longitude = $3, updated_at = $4
WHERE id = $1
RETURNING ` + providerColumns + `;`
	p, err := scanProvider(s.db.QueryRowContext(ctx, query, id, c.Latitude, c.Longitude, time.Now().UTC()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update provider location: %w", err)
	}
	return p, nil
}

// WithinRadius is the geospatial query primitive: available providers
// with a stored location whose great-circle distance from the query
// point is within radiusKm, ordered ascending by distance. The distance
// is computed with the haversine formula in SQL.
func (s *ProviderStore) WithinRadius(ctx context.Context, lat, lng, radiusKm float64) ([]models.Provider, error) {
	query := `
SELECT ` + providerColumns + `
FROM (
    SELECT *,
           2 * 6371 * asin(sqrt(
               pow(sin(radians((latitude - $1) / 2)), 2) +
               cos(radians($1)) * cos(radians(latitude)) *
               pow(sin(radians((longitude - $2) / 2)), 2)
           )) AS distance_km
    FROM providers
    WHERE is_available = TRUE
      AND latitude IS NOT NULL
      AND longitude IS NOT NULL
) candidates
WHERE distance_km <= $3
ORDER BY distance_km ASC
LIMIT 100;
`
	rows, err := s.db.QueryContext(ctx, query, lat, lng, radiusKm)
	if err != nil {
		return nil, fmt.Errorf("providers within radius: %w", err)
	}
	defer rows.Close()

	var result []models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
