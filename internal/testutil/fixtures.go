package testutil

import (
	"time"

	"github.com/HerbHall/guardian/pkg/models"
)

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// NewLocationReport returns a valid location report for deviceID.
// Override individual fields with options as needed.
func NewLocationReport(deviceID string, opts ...func(*models.LocationReport)) models.LocationReport {
	r := models.LocationReport{
		DeviceID: deviceID,
		Lat:      Float(37.5665),
		Lng:      Float(126.9780),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// At sets the coordinates of a location report.
func At(lat, lng float64) func(*models.LocationReport) {
	return func(r *models.LocationReport) {
		r.Lat = Float(lat)
		r.Lng = Float(lng)
	}
}

// NewAlertReport returns a valid fall alert for deviceID.
func NewAlertReport(deviceID string, opts ...func(*models.AlertReport)) models.AlertReport {
	r := models.AlertReport{
		DeviceID: deviceID,
		Kind:     "fall",
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// WithKind sets the alert kind.
func WithKind(kind string) func(*models.AlertReport) {
	return func(r *models.AlertReport) { r.Kind = kind }
}

// WithAlertLocation attaches coordinates to an alert.
func WithAlertLocation(lat, lng float64) func(*models.AlertReport) {
	return func(r *models.AlertReport) {
		r.Lat = Float(lat)
		r.Lng = Float(lng)
	}
}

// WithImage attaches a snapshot URL to an alert.
func WithImage(url string) func(*models.AlertReport) {
	return func(r *models.AlertReport) { r.ImageURL = url }
}

// NewStatusReport returns a heartbeat for deviceID.
func NewStatusReport(deviceID string, battery, signal int, opts ...func(*models.StatusReport)) models.StatusReport {
	r := models.StatusReport{
		DeviceID: deviceID,
		Battery:  Int(battery),
		Signal:   Int(signal),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// ObservedAt sets the heartbeat's device-side timestamp.
func ObservedAt(t time.Time) func(*models.StatusReport) {
	return func(r *models.StatusReport) { r.ObservedAt = &t }
}
