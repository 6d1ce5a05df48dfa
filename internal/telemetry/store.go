// Package telemetry is the append-only event store for location samples
// and alerts.
package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/HerbHall/guardian/internal/store"
	"github.com/HerbHall/guardian/pkg/models"
	"github.com/google/uuid"
)

// Location listing bounds.
const (
	DefaultLocationLimit = 100
	MaxLocationLimit     = 1000
)

// Store persists location samples and alerts. Every write has committed
// by the time a method returns.
type Store struct {
	db  *store.SQLiteStore
	now func() time.Time
}

// NewStore applies the telemetry migrations and returns a ready Store.
func NewStore(ctx context.Context, db *store.SQLiteStore) (*Store, error) {
	if err := db.Migrate(ctx, "telemetry", migrations()); err != nil {
		return nil, fmt.Errorf("migrate telemetry: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// RecordLocation validates and appends a location sample stamped with
// server time.
func (s *Store) RecordLocation(ctx context.Context, r models.LocationReport) (*models.LocationSample, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	sample := &models.LocationSample{
		DeviceID:  r.DeviceID,
		Lat:       *r.Lat,
		Lng:       *r.Lng,
		Timestamp: s.now(),
	}
	res, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO locations (device_id, lat, lng, recorded_at) VALUES (?, ?, ?, ?)`,
		sample.DeviceID, sample.Lat, sample.Lng, sample.Timestamp,
	)
	if err != nil {
		return nil, models.Persistence("insert location", err)
	}
	if sample.ID, err = res.LastInsertId(); err != nil {
		return nil, models.Persistence("insert location", err)
	}
	return sample, nil
}

// RecordAlert validates and stores a new unresolved alert.
func (s *Store) RecordAlert(ctx context.Context, r models.AlertReport) (*models.Alert, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	a := &models.Alert{
		ID:        uuid.New().String(),
		DeviceID:  r.DeviceID,
		Kind:      r.Kind,
		Lat:       r.Lat,
		Lng:       r.Lng,
		ImageURL:  r.ImageURL,
		Timestamp: s.now(),
	}
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO alerts (id, device_id, kind, lat, lng, image_url, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		a.ID, a.DeviceID, a.Kind, nullFloat(a.Lat), nullFloat(a.Lng), a.ImageURL, a.Timestamp,
	)
	if err != nil {
		return nil, models.Persistence("insert alert", err)
	}
	return a, nil
}

// ResolveAlert marks an alert resolved. Resolving twice is not an error;
// resolved_at keeps the first resolution time.
func (s *Store) ResolveAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	if alertID == "" {
		return nil, models.Invalid("alert_id", "is required")
	}
	var a *models.Alert
	err := s.db.Tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE alerts SET resolved = 1, resolved_at = COALESCE(resolved_at, ?) WHERE id = ?`,
			s.now(), alertID,
		)
		if err != nil {
			return models.Persistence("resolve alert", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return models.Persistence("resolve alert", err)
		}
		if n == 0 {
			return models.NotFound("alert", alertID)
		}
		a, err = scanAlert(tx.QueryRowContext(ctx, selectAlert+` WHERE id = ?`, alertID))
		if err != nil {
			return models.Persistence("load alert", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAlert returns one alert by id.
func (s *Store) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	a, err := scanAlert(s.db.DB().QueryRowContext(ctx, selectAlert+` WHERE id = ?`, alertID))
	if err == sql.ErrNoRows {
		return nil, models.NotFound("alert", alertID)
	}
	if err != nil {
		return nil, models.Persistence("get alert", err)
	}
	return a, nil
}

// ListAlerts returns the device's alerts, most recent first.
func (s *Store) ListAlerts(ctx context.Context, deviceID string) ([]models.Alert, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		selectAlert+` WHERE device_id = ? ORDER BY created_at DESC, rowid DESC`, deviceID)
	if err != nil {
		return nil, models.Persistence("list alerts", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, models.Persistence("scan alert row", err)
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Persistence("list alerts", err)
	}
	return alerts, nil
}

// ListLocations returns up to limit samples for the device, most recent
// first. A non-positive limit means DefaultLocationLimit.
func (s *Store) ListLocations(ctx context.Context, deviceID string, limit int) ([]models.LocationSample, error) {
	if limit <= 0 {
		limit = DefaultLocationLimit
	}
	limit = min(limit, MaxLocationLimit)

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, device_id, lat, lng, recorded_at FROM locations
		WHERE device_id = ? ORDER BY recorded_at DESC, id DESC LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, models.Persistence("list locations", err)
	}
	defer rows.Close()

	samples := []models.LocationSample{}
	for rows.Next() {
		var l models.LocationSample
		if err := rows.Scan(&l.ID, &l.DeviceID, &l.Lat, &l.Lng, &l.Timestamp); err != nil {
			return nil, models.Persistence("scan location row", err)
		}
		samples = append(samples, l)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Persistence("list locations", err)
	}
	return samples, nil
}

const selectAlert = `SELECT id, device_id, kind, lat, lng, image_url, resolved, created_at, resolved_at FROM alerts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		a          models.Alert
		lat, lng   sql.NullFloat64
		resolved   int
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.DeviceID, &a.Kind, &lat, &lng, &a.ImageURL,
		&resolved, &a.Timestamp, &resolvedAt); err != nil {
		return nil, err
	}
	if lat.Valid {
		a.Lat = &lat.Float64
	}
	if lng.Valid {
		a.Lng = &lng.Float64
	}
	a.Resolved = resolved != 0
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return &a, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
