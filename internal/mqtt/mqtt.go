// Package mqtt bridges guardian to an MQTT broker: devices publish reports
// under <prefix>/devices/<id>/<kind>, and alert lifecycle events are
// mirrored to <prefix>/alerts/<device_id>/<triggered|resolved>.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/HerbHall/guardian/internal/event"
	"github.com/HerbHall/guardian/pkg/models"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Report kinds, the last segment of a device topic.
const (
	KindLocation = "location"
	KindAlert    = "alert"
	KindStatus   = "status"
)

// Ingester accepts device reports. The relay engine satisfies it.
type Ingester interface {
	IngestLocation(ctx context.Context, r models.LocationReport) (*models.LocationSample, error)
	IngestAlert(ctx context.Context, r models.AlertReport) (*models.Alert, error)
	IngestStatus(ctx context.Context, r models.StatusReport) (*models.DeviceStatus, error)
}

// Bridge subscribes to device topics, feeds reports to the engine through
// a bounded worker pool and publishes alert events back to the broker.
type Bridge struct {
	cfg    Config
	ingest Ingester
	logger *zap.Logger

	mu     sync.RWMutex
	client pahomqtt.Client

	queue  chan inbound
	cancel context.CancelFunc
	done   chan struct{}
}

// inbound is one device message waiting for a worker.
type inbound struct {
	deviceID string
	kind     string
	payload  []byte
}

// statusPayload is a heartbeat as devices publish it over MQTT. Unlike the
// HTTP endpoint, firmware may stamp its own observation time.
type statusPayload struct {
	Battery    *int       `json:"battery"`
	Signal     *int       `json:"signal"`
	ObservedAt *time.Time `json:"observed_at"`
}

// New creates a bridge. Nothing connects until Start.
func New(cfg Config, ingest Ingester, logger *zap.Logger) *Bridge {
	cfg = cfg.withDefaults()
	return &Bridge{
		cfg:    cfg,
		ingest: ingest,
		logger: logger,
		queue:  make(chan inbound, cfg.QueueSize),
	}
}

// Start connects to the broker and starts the ingest workers. A broker
// that is down at startup is not fatal: paho keeps reconnecting and the
// subscriptions are restored on every connect.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.cfg.Enabled() {
		b.logger.Info("mqtt bridge disabled (no broker configured)")
		return nil
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(b.cfg.BrokerURL).
		SetClientID(b.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(b.cfg.Timeout).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("mqtt connection lost", zap.Error(err))
		})

	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password) //nolint:gosec // G101: config field
	}

	client := pahomqtt.NewClient(opts)
	b.setClient(client)
	b.startWorkers(ctx)

	token := client.Connect()
	switch {
	case !token.WaitTimeout(b.cfg.Timeout):
		b.logger.Warn("mqtt connection timed out; will reconnect in background")
	case token.Error() != nil:
		b.logger.Warn("mqtt connection failed; will reconnect in background",
			zap.Error(token.Error()),
		)
	default:
		b.logger.Info("mqtt connected to broker",
			zap.String("broker_url", b.cfg.BrokerURL),
		)
	}
	return nil
}

// Stop disconnects and waits for queued reports already handed to workers.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
		b.logger.Info("mqtt disconnected")
	}

	if b.cancel == nil {
		return nil
	}
	b.cancel()
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Mirror publishes alert lifecycle events from sub to the broker.
func (b *Bridge) Mirror(sub event.Subscriber) (unsubscribe func()) {
	u1 := sub.Subscribe(event.TopicAlertTriggered, b.publishAlert)
	u2 := sub.Subscribe(event.TopicAlertResolved, b.publishAlert)
	return func() {
		u1()
		u2()
	}
}

func (b *Bridge) setClient(c pahomqtt.Client) {
	b.mu.Lock()
	b.client = c
	b.mu.Unlock()
}

// deviceFilters are the subscription filters for device reports.
func (b *Bridge) deviceFilters() map[string]byte {
	filters := make(map[string]byte, 3)
	for _, kind := range []string{KindLocation, KindAlert, KindStatus} {
		filters[b.cfg.TopicPrefix+"/devices/+/"+kind] = b.cfg.QoS
	}
	return filters
}

func (b *Bridge) onConnect(c pahomqtt.Client) {
	token := c.SubscribeMultiple(b.deviceFilters(), b.handleMessage)
	if !token.WaitTimeout(b.cfg.Timeout) {
		b.logger.Warn("mqtt subscribe timed out")
		return
	}
	if err := token.Error(); err != nil {
		b.logger.Error("mqtt subscribe failed", zap.Error(err))
		return
	}
	b.logger.Info("mqtt subscribed to device topics",
		zap.String("prefix", b.cfg.TopicPrefix),
	)
}

// handleMessage runs on paho's delivery goroutine, so it only parses the
// topic and queues. A full queue drops the message; firmware retries.
func (b *Bridge) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	deviceID, kind, ok := parseTopic(b.cfg.TopicPrefix, msg.Topic())
	if !ok {
		b.logger.Debug("ignoring message on unexpected topic", zap.String("topic", msg.Topic()))
		return
	}
	select {
	case b.queue <- inbound{deviceID: deviceID, kind: kind, payload: msg.Payload()}:
	default:
		b.logger.Warn("mqtt ingest queue full, dropping message",
			zap.String("device_id", deviceID),
			zap.String("kind", kind),
		)
	}
}

// startWorkers drains the queue with at most cfg.Workers concurrent
// ingests until ctx is cancelled.
func (b *Bridge) startWorkers(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		var g errgroup.Group
		g.SetLimit(b.cfg.Workers)
		for {
			select {
			case <-ctx.Done():
				_ = g.Wait()
				return
			case m := <-b.queue:
				g.Go(func() error {
					b.process(ctx, m)
					return nil
				})
			}
		}
	}()
}

func (b *Bridge) process(ctx context.Context, m inbound) {
	// A report already dequeued is finished even during shutdown.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.Timeout)
	defer cancel()

	if err := b.dispatch(ctx, m); err != nil {
		fields := []zap.Field{
			zap.String("device_id", m.deviceID),
			zap.String("kind", m.kind),
			zap.Error(err),
		}
		if errors.Is(err, models.ErrValidation) {
			b.logger.Warn("rejected mqtt report", fields...)
			return
		}
		b.logger.Error("failed to ingest mqtt report", fields...)
	}
}

// dispatch decodes a payload and hands it to the engine. The device id in
// the topic wins over any id in the body.
func (b *Bridge) dispatch(ctx context.Context, m inbound) error {
	switch m.kind {
	case KindLocation:
		var r models.LocationReport
		if err := decode(m.payload, &r); err != nil {
			return err
		}
		r.DeviceID = m.deviceID
		_, err := b.ingest.IngestLocation(ctx, r)
		return err
	case KindAlert:
		var r models.AlertReport
		if err := decode(m.payload, &r); err != nil {
			return err
		}
		r.DeviceID = m.deviceID
		_, err := b.ingest.IngestAlert(ctx, r)
		return err
	case KindStatus:
		var p statusPayload
		if err := decode(m.payload, &p); err != nil {
			return err
		}
		_, err := b.ingest.IngestStatus(ctx, models.StatusReport{
			DeviceID:   m.deviceID,
			Battery:    p.Battery,
			Signal:     p.Signal,
			ObservedAt: p.ObservedAt,
		})
		return err
	default:
		return models.Invalid("topic", fmt.Sprintf("unknown report kind %q", m.kind))
	}
}

func decode(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return models.Invalid("payload", err.Error())
	}
	return nil
}

// parseTopic splits <prefix>/devices/<device_id>/<kind>.
func parseTopic(prefix, topic string) (deviceID, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, prefix+"/devices/")
	if !found {
		return "", "", false
	}
	deviceID, kind, found = strings.Cut(rest, "/")
	if !found || deviceID == "" || kind == "" || strings.Contains(kind, "/") {
		return "", "", false
	}
	switch kind {
	case KindLocation, KindAlert, KindStatus:
		return deviceID, kind, true
	}
	return "", "", false
}

// alertTopic maps an alert bus event to its broker topic.
func (b *Bridge) alertTopic(eventTopic, deviceID string) string {
	state := "triggered"
	if eventTopic == event.TopicAlertResolved {
		state = "resolved"
	}
	return b.cfg.TopicPrefix + "/alerts/" + deviceID + "/" + state
}

func (b *Bridge) publishAlert(_ context.Context, e event.Event) {
	alert, ok := e.Payload.(*models.Alert)
	if !ok || alert == nil {
		return
	}

	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		b.logger.Warn("failed to marshal MQTT payload",
			zap.String("topic", e.Topic),
			zap.Error(err),
		)
		return
	}

	mqttTopic := b.alertTopic(e.Topic, alert.DeviceID)
	token := client.Publish(mqttTopic, b.cfg.QoS, b.cfg.Retain, payload)
	if !token.WaitTimeout(b.cfg.Timeout) {
		b.logger.Warn("mqtt publish timed out",
			zap.String("mqtt_topic", mqttTopic),
		)
		return
	}
	if token.Error() != nil {
		b.logger.Warn("mqtt publish failed",
			zap.String("mqtt_topic", mqttTopic),
			zap.Error(token.Error()),
		)
		return
	}

	b.logger.Debug("mqtt event published",
		zap.String("mqtt_topic", mqttTopic),
		zap.String("event_topic", e.Topic),
		zap.String("alert_id", alert.ID),
	)
}
