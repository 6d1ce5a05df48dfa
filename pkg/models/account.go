package models

import "time"

// DefaultGeoFenceRadius is the radius in meters assigned to new accounts.
const DefaultGeoFenceRadius = 500.0

// User is the account record owned by the account-management service.
// Only the fields the relay reads or writes are modeled.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name,omitempty"`
	GeoFenceRadius float64   `json:"geo_fence_radius"`
	CreatedAt      time.Time `json:"created_at"`
}

// Settings are the per-user preferences exposed to the mobile app.
type Settings struct {
	GeoFenceRadius float64 `json:"geo_fence_radius" example:"500"`
}
