// Package helpers provides utilities for integration testing the relay
package helpers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nbd-wtf/go-nostr"
	"github.com/spf13/viper"

	"github.com/HORNET-Storage/trunk-relay/lib/bridge"
	"github.com/HORNET-Storage/trunk-relay/lib/config"
	"github.com/HORNET-Storage/trunk-relay/lib/logging"
	"github.com/HORNET-Storage/trunk-relay/lib/metrics"
	"github.com/HORNET-Storage/trunk-relay/lib/relay"
	"github.com/HORNET-Storage/trunk-relay/lib/stores/events/gorm/sqlite"
	"github.com/HORNET-Storage/trunk-relay/lib/types"
	"github.com/HORNET-Storage/trunk-relay/lib/transports/websocket"
)

// TestRelay represents a test relay instance
type TestRelay struct {
	Relay   *relay.Context
	App     *fiber.App
	URL     string
	HTTPURL string
	DataDir string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	ownsDir bool
}

// TestRelayConfig holds configuration for a test relay
type TestRelayConfig struct {
	DataDir string
	// RedisURL selects the redis bridge transport. Relays sharing a redis
	// server and channel behave like processes of one deployment.
	RedisURL      string
	Channel       string
	Codec         string
	QueryLimit    int
	OutboundQueue int
}

// DefaultTestConfig returns a default test configuration
func DefaultTestConfig() TestRelayConfig {
	return TestRelayConfig{
		Channel:       config.DefaultChannel,
		Codec:         "json",
		QueryLimit:    config.DefaultQueryLimit,
		OutboundQueue: 256,
	}
}

// NewTestRelay creates and starts a new test relay listening on a random
// loopback port.
func NewTestRelay(cfg TestRelayConfig) (*TestRelay, error) {
	dataDir := cfg.DataDir
	ownsDir := false
	if dataDir == "" {
		var err error
		dataDir, err = os.MkdirTemp("", "trunk-test-relay-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp directory: %w", err)
		}
		ownsDir = true
	}

	relayConfig, err := newTestConfig(dataDir, cfg)
	if err != nil {
		return nil, err
	}

	// suppress info output for tests
	logging.SetLevel("error")

	store, err := sqlite.InitStore(filepath.Join(dataDir, "events.db"), relayConfig.Database, relayConfig.Limits.QueryLimit)
	if err != nil {
		cleanupDir(dataDir, ownsDir)
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	transport, err := newTransport(ctx, relayConfig)
	if err != nil {
		cancel()
		store.Close()
		cleanupDir(dataDir, ownsDir)
		return nil, fmt.Errorf("failed to initialize bridge transport: %w", err)
	}

	codec, err := bridge.NewCodec(relayConfig.Bridge.Codec)
	if err != nil {
		cancel()
		transport.Close()
		store.Close()
		cleanupDir(dataDir, ownsDir)
		return nil, err
	}

	r := &TestRelay{
		Relay:   relay.New(relayConfig, store, bridge.New(transport, codec, relayConfig.Bridge.Channel), metrics.New()),
		DataDir: dataDir,
		ctx:     ctx,
		cancel:  cancel,
		ownsDir: ownsDir,
	}

	if err := r.start(); err != nil {
		cancel()
		r.Relay.Close()
		cleanupDir(dataDir, ownsDir)
		return nil, fmt.Errorf("failed to start relay: %w", err)
	}

	return r, nil
}

func newTestConfig(dataDir string, cfg TestRelayConfig) (*types.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	v.Set("server.bind_address", "127.0.0.1")
	v.Set("server.data_path", dataDir)
	v.Set("logging.level", "error")
	v.Set("database.path", filepath.Join(dataDir, "events.db"))
	v.Set("database.max_open_conns", 4)

	if cfg.RedisURL != "" {
		v.Set("bridge.transport", "redis")
		v.Set("bridge.redis_url", cfg.RedisURL)
	}
	if cfg.Channel != "" {
		v.Set("bridge.channel", cfg.Channel)
	}
	if cfg.Codec != "" {
		v.Set("bridge.codec", cfg.Codec)
	}
	if cfg.QueryLimit > 0 {
		v.Set("limits.query_limit", cfg.QueryLimit)
	}
	if cfg.OutboundQueue > 0 {
		v.Set("limits.outbound_queue", cfg.OutboundQueue)
	}

	return config.Load(v)
}

func newTransport(ctx context.Context, cfg *types.Config) (bridge.Transport, error) {
	if cfg.Bridge.Transport == "redis" {
		return bridge.NewRedisTransport(ctx, cfg.Bridge.RedisURL)
	}
	return bridge.NewMemoryTransport(), nil
}

// start starts the fan-out task and the server
func (r *TestRelay) start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	if _, err := r.Relay.Start(r.ctx); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	addr := listener.Addr().String()
	r.URL = "ws://" + addr
	r.HTTPURL = "http://" + addr

	r.App = websocket.BuildServer(r.ctx, r.Relay)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.App.Listener(listener); err != nil {
			logging.Errorf("Test relay error: %v", err)
		}
	}()

	if err := waitForServer(r.URL, 5*time.Second); err != nil {
		return err
	}

	r.running = true
	return nil
}

// Stop shuts down the server and releases the store and bridge
func (r *TestRelay) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}

	r.cancel()

	var errs []error
	if r.App != nil {
		if err := r.App.ShutdownWithTimeout(5 * time.Second); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down test relay: %w", err))
		}
	}

	r.wg.Wait()

	if err := r.Relay.Close(); err != nil {
		errs = append(errs, err)
	}

	r.running = false
	return errors.Join(errs...)
}

// Cleanup stops the relay and removes all test data
func (r *TestRelay) Cleanup() error {
	if err := r.Stop(); err != nil {
		return err
	}
	return cleanupDir(r.DataDir, r.ownsDir)
}

// Connect creates a new client connection to the test relay
func (r *TestRelay) Connect(ctx context.Context) (*nostr.Relay, error) {
	conn, err := nostr.RelayConnect(ctx, r.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test relay: %w", err)
	}
	return conn, nil
}

func cleanupDir(dir string, owned bool) error {
	if !owned || dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove test data: %w", err)
	}
	return nil
}

// waitForServer waits for the server to accept websocket connections
func waitForServer(url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for server to start")
		case <-ticker.C:
			conn, err := nostr.RelayConnect(ctx, url)
			if err == nil {
				conn.Close()
				return nil
			}
		}
	}
}
