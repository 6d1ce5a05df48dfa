package models

import "time"

// DeviceState is the liveness state of a field device.
type DeviceState string

const (
	DeviceStateOnline  DeviceState = "online"
	DeviceStateOffline DeviceState = "offline"
)

// Device is a field unit (wearable, stick, tracker) identified by a
// caller-supplied id such as "STICK_001".
type Device struct {
	ID       string      `json:"id" example:"STICK_001"`
	Status   DeviceState `json:"status" example:"online"`
	Battery  int         `json:"battery" example:"87"`
	Signal   int         `json:"signal" example:"3"`
	LastSeen *time.Time  `json:"lastSeen,omitempty" example:"2026-01-15T10:30:00Z"`
	UserID   string      `json:"userId,omitempty"`
}

// DeviceStatus is the registry's view of a device after a heartbeat.
type DeviceStatus struct {
	DeviceID string      `json:"deviceId"`
	Status   DeviceState `json:"status"`
	Battery  int         `json:"battery"`
	Signal   int         `json:"signal"`
	LastSeen time.Time   `json:"lastSeen"`

	// Stale is true when the heartbeat was observed before the stored
	// last-seen time. Stale heartbeats never overwrite newer readings.
	Stale bool `json:"-"`
}

// StatusReport is an inbound heartbeat from a device.
type StatusReport struct {
	DeviceID   string     `json:"deviceId"`
	Battery    *int       `json:"battery"`
	Signal     *int       `json:"signal"`
	ObservedAt *time.Time `json:"observedAt,omitempty"`
}

// Validate checks the report for missing or out-of-range fields.
func (r *StatusReport) Validate() error {
	if r.DeviceID == "" {
		return Invalid("deviceId", "is required")
	}
	if r.Battery == nil {
		return Invalid("battery", "is required")
	}
	if *r.Battery < 0 || *r.Battery > 100 {
		return Invalid("battery", "must be between 0 and 100")
	}
	if r.Signal == nil {
		return Invalid("signal", "is required")
	}
	return nil
}
