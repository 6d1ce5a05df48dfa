package testutil

import (
	"context"
	"testing"

	"github.com/HerbHall/guardian/internal/devices"
	"github.com/HerbHall/guardian/internal/event"
	"github.com/HerbHall/guardian/internal/relay"
	"github.com/HerbHall/guardian/internal/store"
	"github.com/HerbHall/guardian/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Relay is a fully wired relay over an in-memory database.
type Relay struct {
	DB        *store.SQLiteStore
	Telemetry *telemetry.Store
	Devices   *devices.Registry
	Directory *relay.Directory
	Sessions  *relay.SessionManager
	Bus       *event.Bus
	Engine    *relay.Engine
}

// NewRelay builds a Relay for a test. Everything is torn down with t.
func NewRelay(t *testing.T) *Relay {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	events, err := telemetry.NewStore(ctx, db)
	if err != nil {
		t.Fatalf("telemetry.NewStore: %v", err)
	}
	registry, err := devices.NewRegistry(ctx, db)
	if err != nil {
		t.Fatalf("devices.NewRegistry: %v", err)
	}

	dir := relay.NewDirectory(relay.DefaultShards)
	sessions := relay.NewSessionManager(dir, relay.DefaultSessionBuffer, logger)
	bus := event.NewBus(logger)
	engine := relay.NewEngine(events, registry, dir, bus,
		relay.NewMetrics(prometheus.NewRegistry()), logger)

	t.Cleanup(func() {
		_ = engine.Shutdown(ctx)
		sessions.CloseAll()
	})

	return &Relay{
		DB:        db,
		Telemetry: events,
		Devices:   registry,
		Directory: dir,
		Sessions:  sessions,
		Bus:       bus,
		Engine:    engine,
	}
}
