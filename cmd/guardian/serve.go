package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/HerbHall/guardian/internal/accounts"
	"github.com/HerbHall/guardian/internal/config"
	"github.com/HerbHall/guardian/internal/devices"
	"github.com/HerbHall/guardian/internal/event"
	"github.com/HerbHall/guardian/internal/iot"
	"github.com/HerbHall/guardian/internal/mqtt"
	"github.com/HerbHall/guardian/internal/relay"
	"github.com/HerbHall/guardian/internal/server"
	"github.com/HerbHall/guardian/internal/store"
	"github.com/HerbHall/guardian/internal/telemetry"
	"github.com/HerbHall/guardian/internal/version"
	"github.com/HerbHall/guardian/internal/webhook"
	"github.com/HerbHall/guardian/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return serve(configPath)
	},
}

func serve(configPath string) error {
	// Load configuration (before logger, so log level/format can be configured).
	v, err := server.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	cfg := config.New(v)

	logger, err := config.NewLogger(v)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Guardian server starting", zap.String("version", version.Short()))
	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	srvCfg, err := server.ServerConfig(v)
	if err != nil {
		return err
	}
	relayCfg := relay.DefaultConfig()
	if err := cfg.Sub("relay").Unmarshal(&relayCfg); err != nil {
		return fmt.Errorf("decode relay config: %w", err)
	}
	mqttCfg := mqtt.DefaultConfig()
	if err := cfg.Sub("mqtt").Unmarshal(&mqttCfg); err != nil {
		return fmt.Errorf("decode mqtt config: %w", err)
	}
	var webhookCfg webhook.Config
	if err := cfg.Sub("webhook").Unmarshal(&webhookCfg); err != nil {
		return fmt.Errorf("decode webhook config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openDatabase(ctx, v.GetString("database.path"), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	events, err := telemetry.NewStore(ctx, db)
	if err != nil {
		return fmt.Errorf("initialize telemetry store: %w", err)
	}
	registry, err := devices.NewRegistry(ctx, db)
	if err != nil {
		return fmt.Errorf("initialize device registry: %w", err)
	}
	users, err := accounts.NewStore(ctx, db)
	if err != nil {
		return fmt.Errorf("initialize account store: %w", err)
	}

	bus := event.NewBus(logger.Named("event"))

	dir := relay.NewDirectory(relayCfg.Shards)
	sessions := relay.NewSessionManager(dir, relayCfg.SessionBuffer, logger.Named("session"))
	metrics := relay.NewMetrics(prometheus.DefaultRegisterer)
	metrics.Observe(prometheus.DefaultRegisterer, dir, sessions)
	engine := relay.NewEngine(events, registry, dir, bus, metrics, logger.Named("relay"))
	logger.Info("relay initialized",
		zap.String("component", "relay"),
		zap.Int("shards", relayCfg.Shards),
		zap.Int("session_buffer", relayCfg.SessionBuffer),
	)

	if webhookCfg.Enabled() {
		webhook.New(webhookCfg, logger.Named("webhook")).Subscribe(bus)
	}

	bridge := mqtt.New(mqttCfg, engine, logger.Named("mqtt"))
	bridge.Mirror(bus)
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("start mqtt bridge: %w", err)
	}

	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		return db.Ping(ctx)
	})
	srv := server.New(srvCfg, logger, readyCheck,
		iot.NewHandler(engine, logger.Named("iot")),
		telemetry.NewHandler(events, engine, logger.Named("telemetry")),
		devices.NewHandler(registry, logger.Named("devices")),
		accounts.NewHandler(users, logger.Named("accounts")),
		ws.NewHandler(sessions, relayCfg.WriteTimeout, logger.Named("ws")),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("Guardian server ready", zap.String("addr", srvCfg.Addr()))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}

	// Graceful shutdown: stop intake first, then drain the relay, then
	// drop client sessions.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), relayCfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := bridge.Stop(shutdownCtx); err != nil {
		logger.Error("mqtt shutdown error", zap.Error(err))
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Error("relay shutdown error", zap.Error(err))
	}
	sessions.CloseAll()

	logger.Info("Guardian server stopped")
	return nil
}

// openDatabase opens the store and refuses to run against a schema
// written by a newer binary.
func openDatabase(ctx context.Context, path string, logger *zap.Logger) (*store.SQLiteStore, error) {
	if path == "" {
		path = "guardian.db"
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.CheckVersion(ctx, version.Short()); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("path", path),
	)
	return db, nil
}
