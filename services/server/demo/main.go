package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/HORNET-Storage/trunk-relay/lib/bridge"
	"github.com/HORNET-Storage/trunk-relay/lib/config"
	"github.com/HORNET-Storage/trunk-relay/lib/handlers/nostr/universal"
	"github.com/HORNET-Storage/trunk-relay/lib/logging"
	"github.com/HORNET-Storage/trunk-relay/lib/metrics"
	"github.com/HORNET-Storage/trunk-relay/lib/relay"
	events_gorm "github.com/HORNET-Storage/trunk-relay/lib/stores/events/gorm"
	"github.com/HORNET-Storage/trunk-relay/lib/stores/events/gorm/sqlite"
	ws "github.com/HORNET-Storage/trunk-relay/lib/transports/websocket"
	"github.com/HORNET-Storage/trunk-relay/services/server/demo/demodata"
)

func main() {
	log.Println("========================================")
	log.Println("  TRUNK RELAY DEMO MODE")
	log.Println("  Seeded with generated events")
	log.Println("  For demonstration purposes only")
	log.Println("========================================")

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

	// Use a separate database so demo data never mixes with real events
	store, err := sqlite.InitStore(config.GetPath("demo_events.db"), cfg.Database, cfg.Limits.QueryLimit)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := relay.New(cfg, store, bridge.New(bridge.NewMemoryTransport(), bridge.JSONCodec{}, cfg.Bridge.Channel), metrics.New())
	defer func() {
		log.Println("Cleaning up demo relay resources...")
		if err := r.Close(); err != nil {
			log.Printf("Failed to close demo relay: %v", err)
		}
	}()

	if err := seedIfEmpty(ctx, store, r.Ingest); err != nil {
		log.Printf("Warning: Failed to generate demo data: %v", err)
	}

	if _, err := r.Start(ctx); err != nil {
		log.Printf("Failed to start fan-out: %v", err)
		return
	}

	app := ws.BuildServer(ctx, r)
	go func() {
		if err := ws.StartServer(app, r); err != nil {
			log.Printf("Demo server stopped: %v", err)
			stop()
		}
	}()

	log.Printf("Demo relay listening on %s:%d", cfg.Server.BindAddress, cfg.Server.Port)
	<-ctx.Done()

	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Printf("Failed to shut down demo server: %v", err)
	}
}

// seedIfEmpty runs generated events through the ingest pipeline when the
// demo database holds no events yet
func seedIfEmpty(ctx context.Context, store *events_gorm.GormEventStore, ingest *universal.Handler) error {
	count, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		log.Printf("Using existing demo data (found %d events)", count)
		return nil
	}

	log.Println("Demo database is empty, generating demo data...")
	events, err := demodata.NewDemoDataGenerator().Generate()
	if err != nil {
		return err
	}

	accepted := 0
	for _, event := range events {
		if _, err := ingest.Handle(ctx, event); err != nil {
			var ingestErr *universal.IngestError
			if errors.As(err, &ingestErr) && ingestErr.Kind == universal.Duplicate {
				continue
			}
			return err
		}
		accepted++
	}

	log.Printf("Successfully generated demo data (%d events accepted)", accepted)
	return nil
}
