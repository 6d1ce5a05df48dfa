// Package accounts holds the small slice of user data the relay serves:
// per-user settings such as the geo-fence radius.
package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/guardian/internal/store"
	"github.com/HerbHall/guardian/pkg/models"
	"github.com/google/uuid"
)

// Store reads and writes user settings.
type Store struct {
	db *store.SQLiteStore
}

// NewStore applies the account migrations and returns a Store.
func NewStore(ctx context.Context, db *store.SQLiteStore) (*Store, error) {
	if err := db.Migrate(ctx, "accounts", migrations()); err != nil {
		return nil, fmt.Errorf("migrate accounts: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateUser inserts u, filling in the id, creation time and default
// radius when they are unset.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = strings.TrimSpace(u.Email)
	if u.Email == "" {
		return models.Invalid("email", "is required")
	}
	if u.GeoFenceRadius < 0 {
		return models.Invalid("geo_fence_radius", "must not be negative")
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.GeoFenceRadius == 0 {
		u.GeoFenceRadius = models.DefaultGeoFenceRadius
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO users (id, email, name, geo_fence_radius, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.GeoFenceRadius, u.CreatedAt,
	)
	return models.Persistence("insert user", err)
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.db.DB().QueryRowContext(ctx, `
		SELECT id, email, name, geo_fence_radius, created_at FROM users WHERE id = ?`, userID,
	).Scan(&u.ID, &u.Email, &u.Name, &u.GeoFenceRadius, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, models.NotFound("user", userID)
	}
	if err != nil {
		return nil, models.Persistence("get user", err)
	}
	return &u, nil
}

// GetSettings returns the user's settings.
func (s *Store) GetSettings(ctx context.Context, userID string) (*models.Settings, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.Settings{GeoFenceRadius: u.GeoFenceRadius}, nil
}

// SetSettings updates the user's geo-fence radius in meters.
func (s *Store) SetSettings(ctx context.Context, userID string, radius float64) error {
	if radius < 0 {
		return models.Invalid("geo_fence_radius", "must not be negative")
	}
	res, err := s.db.DB().ExecContext(ctx,
		`UPDATE users SET geo_fence_radius = ? WHERE id = ?`, radius, userID)
	if err != nil {
		return models.Persistence("update settings", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Persistence("update settings", err)
	}
	if n == 0 {
		return models.NotFound("user", userID)
	}
	return nil
}
