// Package event is the in-process bus that carries relay activity to
// integrations such as the MQTT mirror and webhooks.
package event

import (
	"context"
	"time"
)

// Topics published by the relay engine.
const (
	TopicLocationRecorded = "telemetry.location.recorded"
	TopicAlertTriggered   = "alert.triggered"
	TopicAlertResolved    = "alert.resolved"
	TopicStatusUpdated    = "device.status.updated"
)

// Event is one published notification. Payload holds the domain record
// (*models.LocationSample, *models.Alert or *models.DeviceStatus).
type Event struct {
	Topic     string
	Source    string
	Timestamp time.Time
	Payload   any
}

// Handler consumes events. Handlers must not block for long: Publish runs
// them on the caller's goroutine.
type Handler func(ctx context.Context, e Event)

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	PublishAsync(ctx context.Context, e Event)
}

// Subscriber is the consumer side of the bus.
type Subscriber interface {
	Subscribe(topic string, h Handler) (unsubscribe func())
	SubscribeAll(h Handler) (unsubscribe func())
}
