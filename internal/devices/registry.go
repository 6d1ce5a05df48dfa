// Package devices tracks the liveness and last readings of field devices.
package devices

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/HerbHall/guardian/internal/store"
	"github.com/HerbHall/guardian/pkg/models"
)

// Registry is the device table. Status heartbeats are its only writer
// apart from the CLI user link.
type Registry struct {
	db  *store.SQLiteStore
	now func() time.Time
}

// NewRegistry applies the device migrations and returns a Registry.
func NewRegistry(ctx context.Context, db *store.SQLiteStore) (*Registry, error) {
	if err := db.Migrate(ctx, "devices", migrations()); err != nil {
		return nil, fmt.Errorf("migrate devices: %w", err)
	}
	return &Registry{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// UpdateStatus applies a heartbeat. The device is marked online and
// last_seen only moves forward. Battery and signal are overwritten only by
// a heartbeat at least as recent as the stored last_seen; an older one is
// reported back as Stale with the stored readings. Unknown devices are
// registered on their first heartbeat.
func (r *Registry) UpdateStatus(ctx context.Context, rep models.StatusReport) (*models.DeviceStatus, error) {
	if err := rep.Validate(); err != nil {
		return nil, err
	}
	observed := r.now()
	if rep.ObservedAt != nil {
		observed = rep.ObservedAt.UTC()
	}

	st := &models.DeviceStatus{
		DeviceID: rep.DeviceID,
		Status:   models.DeviceStateOnline,
		Battery:  *rep.Battery,
		Signal:   *rep.Signal,
		LastSeen: observed,
	}
	err := r.db.Tx(ctx, func(tx *sql.Tx) error {
		var (
			battery, signal int
			lastSeen        sql.NullTime
		)
		err := tx.QueryRowContext(ctx,
			`SELECT battery, signal, last_seen FROM devices WHERE id = ?`, rep.DeviceID,
		).Scan(&battery, &signal, &lastSeen)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return models.Persistence("load device", err)
		case lastSeen.Valid && observed.Before(lastSeen.Time):
			st.Battery, st.Signal, st.LastSeen, st.Stale = battery, signal, lastSeen.Time, true
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO devices (id, status, battery, signal, last_seen) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				battery = excluded.battery,
				signal = excluded.signal,
				last_seen = excluded.last_seen`,
			st.DeviceID, string(st.Status), st.Battery, st.Signal, st.LastSeen,
		)
		return models.Persistence("upsert device", err)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Get returns the device or a NotFoundError.
func (r *Registry) Get(ctx context.Context, deviceID string) (*models.Device, error) {
	var (
		d        models.Device
		status   string
		lastSeen sql.NullTime
		userID   sql.NullString
	)
	err := r.db.DB().QueryRowContext(ctx,
		`SELECT id, status, battery, signal, last_seen, user_id FROM devices WHERE id = ?`, deviceID,
	).Scan(&d.ID, &status, &d.Battery, &d.Signal, &lastSeen, &userID)
	if err == sql.ErrNoRows {
		return nil, models.NotFound("device", deviceID)
	}
	if err != nil {
		return nil, models.Persistence("get device", err)
	}
	d.Status = models.DeviceState(status)
	if lastSeen.Valid {
		t := lastSeen.Time
		d.LastSeen = &t
	}
	d.UserID = userID.String
	return &d, nil
}

// LinkUser assigns the device to a user, registering the device (offline)
// if it has never reported.
func (r *Registry) LinkUser(ctx context.Context, deviceID, userID string) error {
	if deviceID == "" {
		return models.Invalid("device_id", "is required")
	}
	if userID == "" {
		return models.Invalid("user_id", "is required")
	}
	_, err := r.db.DB().ExecContext(ctx, `
		INSERT INTO devices (id, user_id) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id`,
		deviceID, userID,
	)
	return models.Persistence("link device", err)
}
