package database

import (
	"context"
	"database/sql"
	"fmt"

	"towy-backend/models"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	query := `
INSERT INTO users (id, name, email, password_hash, role, phone, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.Phone, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
SELECT id, name, email, password_hash, role, phone, created_at
FROM users
WHERE email = $1;
`
	var u models.User
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
SELECT id, name, email, password_hash, role, phone, created_at
FROM users
WHERE id = $1;
`
	var u models.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &u, nil
}
