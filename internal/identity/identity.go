// Package identity implements the identity service: credential storage,
// login, and the public-key endpoint other services verify tokens against.
package identity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/procat/backend/internal/apperr"
)

// User is a stored account.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Repository persists users.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps a database handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetByUsername loads one user.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, created_at FROM users WHERE username = $1`,
		username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindUnauthorized, "invalid credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &u, nil
}

// Create stores a new user with a bcrypt-hashed password.
func (r *Repository) Create(ctx context.Context, username, password, role string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Seed creates the default accounts when they are absent. Used by local and
// demo deployments; production provisions users out of band.
func (r *Repository) Seed(ctx context.Context, adminPassword, userPassword string) error {
	for _, account := range []struct {
		username, password, role string
	}{
		{"admin", adminPassword, "admin"},
		{"user", userPassword, "user"},
	} {
		if _, err := r.GetByUsername(ctx, account.username); err == nil {
			continue
		}
		if _, err := r.Create(ctx, account.username, account.password, account.role); err != nil {
			return fmt.Errorf("seed user %s: %w", account.username, err)
		}
	}
	return nil
}

// Authenticate verifies a username/password pair.
func (r *Repository) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := r.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, apperr.New(apperr.KindUnauthorized, "invalid credentials")
	}
	return u, nil
}
