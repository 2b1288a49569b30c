package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/gyaneshwarpardhi/sherox/internal/api"
	"github.com/gyaneshwarpardhi/sherox/internal/config"
	"github.com/gyaneshwarpardhi/sherox/internal/connectivity"
	"github.com/gyaneshwarpardhi/sherox/internal/engine"
	"github.com/gyaneshwarpardhi/sherox/internal/geo"
	"github.com/gyaneshwarpardhi/sherox/internal/index"
	"github.com/gyaneshwarpardhi/sherox/internal/outbox"
	"github.com/gyaneshwarpardhi/sherox/internal/store"
	"github.com/gyaneshwarpardhi/sherox/internal/transmit"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "configs/sherox.yaml", "Path to YAML config")
	envFile := flag.String("env-file", ".env", "Optional dotenv file with SHEROX_* overrides")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	if err := config.LoadDotEnv(*envFile); err != nil {
		slog.Error("failed to load env file", "err", err)
		os.Exit(1)
	}
	loader, err := config.NewLoader(*cfgPath, logger)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}
	setLevel(level, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Storage ───────────────────────────────────────────────────────────────
	kv, closeKV, err := openStore(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to open event store", "err", err)
		os.Exit(1)
	}
	slots, err := openSlots(cfg.Storage)
	if err != nil {
		slog.Error("failed to open key index", "err", err)
		os.Exit(1)
	}
	ob := outbox.New(kv, index.New(slots, cfg.Storage.IndexSlot, logger), logger)
	slog.Info("event store ready", "driver", cfg.Storage.Driver, "pending", len(ob.Pending(ctx)))

	// ── Connectivity & location ───────────────────────────────────────────────
	var conn connectivity.Provider
	switch cfg.Connectivity.Mode {
	case "probe":
		c := cfg.Connectivity
		probe := connectivity.NewProbe(c.ProbeURL, c.ProbeInterval, c.ProbeTimeout, c.InitialOnline, logger)
		go probe.Run(ctx)
		conn = probe
	default:
		conn = connectivity.NewManual(cfg.Connectivity.InitialOnline)
	}

	// ── Transmitters ──────────────────────────────────────────────────────────
	var mqttClient mqtt.Client
	if cfg.Transmitters.MQTT.Enabled {
		mqttClient, err = transmit.DialMQTT(cfg.Transmitters.MQTT)
		if err != nil {
			slog.Error("failed to connect mqtt broker", "err", err)
			os.Exit(1)
		}
		defer mqttClient.Disconnect(250)
	}
	tx, err := buildTransmitter(cfg, mqttClient, logger)
	if err != nil {
		slog.Error("failed to build transmitters", "err", err)
		os.Exit(1)
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	eng := engine.New(ctx, cfg.Engine, engine.Deps{
		Outbox:       ob,
		Connectivity: conn,
		Locator:      newLocator(cfg.Geolocation),
		Transmitter:  tx,
		Logger:       logger,
	})
	go eng.Watch(ctx)

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	// Storage, connectivity and location are fixed for the process lifetime;
	// reload only swaps log level and transmitters.
	loader.OnChange(func(newCfg *config.Config) {
		if err := config.Validate(newCfg); err != nil {
			slog.Warn("hot-reload skipped: config invalid", "err", err)
			return
		}
		next, err := buildTransmitter(newCfg, mqttClient, logger)
		if err != nil {
			slog.Warn("hot-reload skipped: transmitter build failed", "err", err)
			return
		}
		setLevel(level, newCfg.LogLevel)
		eng.SwapTransmitter(next)
		slog.Info("transmitters hot-reloaded", "routes", len(newCfg.Routes))
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(api.Deps{
		Engine:       eng,
		Outbox:       ob,
		Connectivity: conn,
		Loader:       loader,
		Logger:       logger,
	})
	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr, "online", conn.Online())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	eng.Shutdown() // queued triggers are buffered before the context goes
	cancel()       // stop probe and watcher
	if err := closeKV(); err != nil {
		slog.Warn("event store close failed", "err", err)
	}
	slog.Info("goodbye")
}

func setLevel(v *slog.LevelVar, name string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		slog.Warn("unknown log level, keeping current", "log_level", name)
		return
	}
	v.Set(l)
}

func openStore(ctx context.Context, c config.StorageConf) (store.KV, func() error, error) {
	switch c.Driver {
	case "memory":
		return store.NewMemory(), func() error { return nil }, nil
	case "sqlite":
		s, err := store.Open(c.Path)
		if err != nil {
			return nil, nil, err
		}
		if err := s.InitSchema(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", c.Driver)
}

func openSlots(c config.StorageConf) (index.Slots, error) {
	if c.IndexDir == "" {
		return index.NewMemorySlots(), nil
	}
	return index.NewFileSlots(c.IndexDir)
}

func newLocator(c config.GeoConf) geo.Locator {
	switch c.Provider {
	case "static":
		return geo.Static{Lat: *c.Lat, Lng: *c.Lng}
	case "http":
		return geo.HTTP{URL: c.URL}
	}
	return geo.None{}
}

func buildTransmitter(cfg *config.Config, client mqtt.Client, logger *slog.Logger) (transmit.Transmitter, error) {
	var pub transmit.Publisher
	if client != nil {
		pub = client
	}
	reg, err := transmit.FromConfig(cfg, pub, logger)
	if err != nil {
		return nil, err
	}
	return reg.Build(cfg, logger)
}
