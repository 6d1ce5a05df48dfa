package relay

import (
	"time"

	"github.com/HerbHall/guardian/pkg/models"
)

// Outbound event names as seen by clients.
const (
	EventLocationUpdate = "location_update"
	EventEmergencyAlert = "emergency_alert"
	EventStatusUpdate   = "status_update"
	EventJoined         = "joined"
	EventError          = "error"
)

// Message is one outbound frame queued on a session.
type Message struct {
	Event    string `json:"event"`
	DeviceID string `json:"device_id,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// LocationUpdate is the data of a location_update event.
type LocationUpdate struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusUpdate is the data of a status_update event.
type StatusUpdate struct {
	Battery int                `json:"battery"`
	Signal  int                `json:"signal"`
	Status  models.DeviceState `json:"status"`
}

// ErrorData is the data of an error event.
type ErrorData struct {
	Error string `json:"error"`
}

func locationMessage(s *models.LocationSample) Message {
	return Message{
		Event:    EventLocationUpdate,
		DeviceID: s.DeviceID,
		Data:     LocationUpdate{Lat: s.Lat, Lng: s.Lng, Timestamp: s.Timestamp},
	}
}

func alertMessage(a *models.Alert) Message {
	return Message{Event: EventEmergencyAlert, DeviceID: a.DeviceID, Data: a}
}

func statusMessage(st *models.DeviceStatus) Message {
	return Message{
		Event:    EventStatusUpdate,
		DeviceID: st.DeviceID,
		Data:     StatusUpdate{Battery: st.Battery, Signal: st.Signal, Status: st.Status},
	}
}

// JoinedMessage acknowledges a join_device request.
func JoinedMessage(deviceID string) Message {
	return Message{Event: EventJoined, DeviceID: deviceID}
}

// ErrorMessage reports a rejected client request.
func ErrorMessage(reason string) Message {
	return Message{Event: EventError, Data: ErrorData{Error: reason}}
}
