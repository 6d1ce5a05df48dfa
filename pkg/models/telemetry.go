package models

import (
	"math"
	"time"
)

// LocationSample is one recorded position fix. Samples are append-only.
type LocationSample struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"deviceId" example:"STICK_001"`
	Lat       float64   `json:"lat" example:"12.9"`
	Lng       float64   `json:"lng" example:"77.6"`
	Timestamp time.Time `json:"timestamp"`
}

// Alert is an emergency raised by a device. The only mutation an alert
// ever sees is the one-way resolved transition.
type Alert struct {
	ID         string     `json:"id" example:"9f1c2b9e-5d8e-4c38-a1a4-2f4c9d1e7b10"`
	DeviceID   string     `json:"deviceId" example:"STICK_001"`
	Kind       string     `json:"type" example:"SOS"`
	Lat        *float64   `json:"lat,omitempty"`
	Lng        *float64   `json:"lng,omitempty"`
	ImageURL   string     `json:"imageUrl,omitempty"`
	Resolved   bool       `json:"resolved"`
	Timestamp  time.Time  `json:"timestamp"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// LocationReport is an inbound location ping.
type LocationReport struct {
	DeviceID string   `json:"deviceId"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
}

// Validate checks the report for missing or out-of-range fields.
func (r *LocationReport) Validate() error {
	if r.DeviceID == "" {
		return Invalid("deviceId", "is required")
	}
	if r.Lat == nil {
		return Invalid("lat", "is required")
	}
	if r.Lng == nil {
		return Invalid("lng", "is required")
	}
	return validateCoordinates(*r.Lat, *r.Lng)
}

// AlertReport is an inbound alert trigger.
type AlertReport struct {
	DeviceID string   `json:"deviceId"`
	Kind     string   `json:"type"`
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
	ImageURL string   `json:"imageUrl,omitempty"`
}

// Validate checks the report. Coordinates are optional but must be given
// together.
func (r *AlertReport) Validate() error {
	if r.DeviceID == "" {
		return Invalid("deviceId", "is required")
	}
	if r.Kind == "" {
		return Invalid("type", "is required")
	}
	switch {
	case r.Lat == nil && r.Lng == nil:
		return nil
	case r.Lat == nil:
		return Invalid("lat", "is required when lng is set")
	case r.Lng == nil:
		return Invalid("lng", "is required when lat is set")
	}
	return validateCoordinates(*r.Lat, *r.Lng)
}

func validateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return Invalid("lat", "must be between -90 and 90")
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return Invalid("lng", "must be between -180 and 180")
	}
	return nil
}
