// Package relay fans device events out to the client sessions subscribed
// to each device.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/HerbHall/guardian/internal/event"
	"github.com/HerbHall/guardian/pkg/models"
	"go.uber.org/zap"
)

// ErrEngineClosed is returned by ingest calls after Shutdown.
var ErrEngineClosed = fmt.Errorf("%w: relay engine is shutting down", models.ErrUnavailable)

// EventStore persists location samples and alerts.
type EventStore interface {
	RecordLocation(ctx context.Context, r models.LocationReport) (*models.LocationSample, error)
	RecordAlert(ctx context.Context, r models.AlertReport) (*models.Alert, error)
	ResolveAlert(ctx context.Context, alertID string) (*models.Alert, error)
}

// DeviceRegistry applies heartbeats.
type DeviceRegistry interface {
	UpdateStatus(ctx context.Context, r models.StatusReport) (*models.DeviceStatus, error)
}

// Engine validates, persists and broadcasts device events. Events for one
// device are persisted and fanned out under that device's lock, so every
// subscriber sees them in commit order.
type Engine struct {
	events  EventStore
	devices DeviceRegistry
	dir     *Directory
	bus     event.Publisher
	metrics *Metrics
	logger  *zap.Logger
	locks   *keyedMutex
	now     func() time.Time

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewEngine wires an engine. bus may be nil when no integrations listen.
func NewEngine(events EventStore, devices DeviceRegistry, dir *Directory, bus event.Publisher, metrics *Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		events:  events,
		devices: devices,
		dir:     dir,
		bus:     bus,
		metrics: metrics,
		logger:  logger,
		locks:   newKeyedMutex(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// IngestLocation records a location ping and broadcasts location_update.
func (e *Engine) IngestLocation(ctx context.Context, r models.LocationReport) (*models.LocationSample, error) {
	return ingest(ctx, e, "location", r.DeviceID, r.Validate,
		func() (*models.LocationSample, error) { return e.events.RecordLocation(ctx, r) },
		locationMessage, event.TopicLocationRecorded)
}

// IngestAlert records an alert and broadcasts emergency_alert.
func (e *Engine) IngestAlert(ctx context.Context, r models.AlertReport) (*models.Alert, error) {
	return ingest(ctx, e, "alert", r.DeviceID, r.Validate,
		func() (*models.Alert, error) { return e.events.RecordAlert(ctx, r) },
		alertMessage, event.TopicAlertTriggered)
}

// IngestStatus applies a heartbeat and broadcasts status_update with the
// registry's stored values. Without an observation time the heartbeat is
// stamped now; times in the future are clamped to now.
func (e *Engine) IngestStatus(ctx context.Context, r models.StatusReport) (*models.DeviceStatus, error) {
	now := e.now()
	if r.ObservedAt == nil || r.ObservedAt.After(now) {
		r.ObservedAt = &now
	}
	return ingest(ctx, e, "status", r.DeviceID, r.Validate,
		func() (*models.DeviceStatus, error) { return e.devices.UpdateStatus(ctx, r) },
		statusMessage, event.TopicStatusUpdated)
}

// ResolveAlert marks an alert resolved and tells integrations. Clients are
// not notified over the relay.
func (e *Engine) ResolveAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.inflight.Done()

	a, err := e.events.ResolveAlert(ctx, alertID)
	if err != nil {
		e.metrics.event("resolve", resultFor(err))
		return nil, err
	}
	e.metrics.event("resolve", "ok")
	e.publish(ctx, event.TopicAlertResolved, a)
	return a, nil
}

// Shutdown rejects new ingests and waits for in-flight ones to finish or
// ctx to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("relay shutdown: %w", ctx.Err())
	}
}

func (e *Engine) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	e.inflight.Add(1)
	return nil
}

// ingest runs validate, persist, fan out, publish for one event kind.
// Persist and fan-out share the device lock; publishing happens outside
// it so slow integrations never delay the next event for the device.
func ingest[T any](
	ctx context.Context,
	e *Engine,
	kind, deviceID string,
	validate func() error,
	persist func() (T, error),
	message func(T) Message,
	topic string,
) (T, error) {
	var zero T
	if err := e.begin(); err != nil {
		return zero, err
	}
	defer e.inflight.Done()

	if err := validate(); err != nil {
		e.metrics.event(kind, "invalid")
		return zero, err
	}

	unlock := e.locks.Lock(deviceID)
	rec, err := persist()
	if err != nil {
		unlock()
		e.metrics.event(kind, resultFor(err))
		e.logger.Warn("ingest failed",
			zap.String("kind", kind),
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return zero, err
	}
	delivered := e.fanOut(deviceID, message(rec))
	unlock()

	e.metrics.event(kind, "ok")
	e.logger.Debug("event relayed",
		zap.String("kind", kind),
		zap.String("device_id", deviceID),
		zap.Int("delivered", delivered),
	)
	e.publish(ctx, topic, rec)
	return rec, nil
}

// fanOut enqueues m on every session in the device's room and returns the
// number of successful deliveries. Per-session failures stop here.
func (e *Engine) fanOut(deviceID string, m Message) int {
	delivered := 0
	for _, s := range e.dir.MembersOf(deviceID) {
		if err := s.Enqueue(m); err != nil {
			derr := &models.DeliveryError{SessionID: s.ID(), Err: err}
			if errors.Is(err, ErrBufferFull) {
				e.metrics.delivery("dropped")
			} else {
				e.metrics.delivery("closed")
			}
			e.logger.Debug("delivery failed", zap.String("device_id", deviceID), zap.Error(derr))
			continue
		}
		e.metrics.delivery("ok")
		delivered++
	}
	return delivered
}

func (e *Engine) publish(ctx context.Context, topic string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.PublishAsync(context.WithoutCancel(ctx), event.Event{
		Topic:     topic,
		Source:    "relay",
		Timestamp: e.now(),
		Payload:   payload,
	})
}

func resultFor(err error) string {
	switch {
	case errors.Is(err, models.ErrValidation):
		return "invalid"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
