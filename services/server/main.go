package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/HORNET-Storage/trunk-relay/lib/bridge"
	"github.com/HORNET-Storage/trunk-relay/lib/config"
	"github.com/HORNET-Storage/trunk-relay/lib/logging"
	"github.com/HORNET-Storage/trunk-relay/lib/metrics"
	"github.com/HORNET-Storage/trunk-relay/lib/relay"
	"github.com/HORNET-Storage/trunk-relay/lib/signing"
	"github.com/HORNET-Storage/trunk-relay/lib/stores"
	"github.com/HORNET-Storage/trunk-relay/lib/stores/events/gorm/postgres"
	"github.com/HORNET-Storage/trunk-relay/lib/stores/events/gorm/sqlite"
	"github.com/HORNET-Storage/trunk-relay/lib/types"
	ws "github.com/HORNET-Storage/trunk-relay/lib/transports/websocket"
)

func main() {
	if err := config.InitConfig(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logging.InitLogger(cfg.Logging, config.GetPath(cfg.Logging.Path)); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.GetLogger().Close()

	config.OnReload(func(c *types.Config) {
		logging.SetLevel(c.Logging.Level)
		logging.Info("Log level reloaded", map[string]interface{}{"level": c.Logging.Level})
	})

	if cfg.Relay.PubKey != "" {
		pubkey, err := signing.NormalizePublicKey(cfg.Relay.PubKey)
		if err != nil {
			logging.Fatalf("Invalid relay.pubkey: %v", err)
		}
		cfg.Relay.PubKey = pubkey
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		logging.Fatalf("Failed to open event store: %v", err)
	}

	transport, err := openTransport(ctx, cfg)
	if err != nil {
		store.Close()
		logging.Fatalf("Failed to open bridge transport: %v", err)
	}

	codec, err := bridge.NewCodec(cfg.Bridge.Codec)
	if err != nil {
		store.Close()
		transport.Close()
		logging.Fatalf("Failed to create bridge codec: %v", err)
	}

	r := relay.New(cfg, store, bridge.New(transport, codec, cfg.Bridge.Channel), metrics.New())
	defer func() {
		if err := r.Close(); err != nil {
			logging.Errorf("Failed to close relay resources: %v", err)
		}
	}()

	fanout, err := r.Start(ctx)
	if err != nil {
		logging.Errorf("Failed to start fan-out: %v", err)
		return
	}

	app := ws.BuildServer(ctx, r)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- ws.StartServer(app, r)
	}()

	logging.Info("Relay started", map[string]interface{}{
		"database":  cfg.Database.Driver,
		"transport": cfg.Bridge.Transport,
		"codec":     codec.Name(),
		"channel":   cfg.Bridge.Channel,
	})

	select {
	case <-ctx.Done():
		logging.Info("Shutting down")
	case err := <-serverErr:
		logging.Errorf("Server stopped: %v", err)
	case err := <-fanout:
		if err != nil {
			logging.Errorf("Fan-out stopped: %v", err)
		}
	}

	stop()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logging.Errorf("Failed to shut down server: %v", err)
	}
}

func openStore(cfg *types.Config) (stores.EventStore, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return postgres.InitStore(cfg.Database, cfg.Limits.QueryLimit)
	case "sqlite":
		path := cfg.Database.Path
		if !filepath.IsAbs(path) {
			path = config.GetPath(path)
		}
		return sqlite.InitStore(path, cfg.Database, cfg.Limits.QueryLimit)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func openTransport(ctx context.Context, cfg *types.Config) (bridge.Transport, error) {
	switch cfg.Bridge.Transport {
	case "redis":
		return bridge.NewRedisTransport(ctx, cfg.Bridge.RedisURL)
	case "memory":
		return bridge.NewMemoryTransport(), nil
	default:
		return nil, fmt.Errorf("unknown bridge transport %q", cfg.Bridge.Transport)
	}
}
