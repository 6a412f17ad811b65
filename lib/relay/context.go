package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/HORNET-Storage/trunk-relay/lib/bridge"
	"github.com/HORNET-Storage/trunk-relay/lib/handlers/nostr/universal"
	"github.com/HORNET-Storage/trunk-relay/lib/logging"
	"github.com/HORNET-Storage/trunk-relay/lib/metrics"
	"github.com/HORNET-Storage/trunk-relay/lib/stores"
	"github.com/HORNET-Storage/trunk-relay/lib/switchboard"
	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

// Context owns everything one relay process shares between connections. It is
// constructed once and handed to the transport and the fan-out task.
type Context struct {
	Config      *types.Config
	Store       stores.EventStore
	Bridge      *bridge.Bridge
	Switchboard *switchboard.Switchboard
	Ingest      *universal.Handler
	Metrics     *metrics.Metrics
}

// New wires the relay components together. Each client queue holds
// limits.outbound_queue frames of live traffic on top of one full REQ replay
// and its EOSE, so a backfill never pushes fan-out into the slow consumer path.
func New(cfg *types.Config, store stores.EventStore, b *bridge.Bridge, m *metrics.Metrics) *Context {
	queueSize := cfg.Limits.OutboundQueue + cfg.Limits.QueryLimit + 1

	return &Context{
		Config:      cfg,
		Store:       store,
		Bridge:      b,
		Switchboard: switchboard.New(queueSize, cfg.Limits.FanoutWorkers, m),
		Ingest:      universal.NewHandler(store, b, m),
		Metrics:     m,
	}
}

// Start subscribes to the bridge and feeds every received event to the
// switchboard until ctx is done. The subscription is in place when Start
// returns; the returned channel yields the fan-out task's exit error.
func (r *Context) Start(ctx context.Context) (<-chan error, error) {
	events, err := r.Bridge.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to bridge: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		err := r.Switchboard.Run(ctx, events)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err == nil && ctx.Err() == nil {
			// the bridge stopped delivering while we were still running
			err = errors.New("bridge subscription closed")
			logging.Error("Fan-out stopped", map[string]interface{}{"error": err})
		}
		done <- err
	}()

	return done, nil
}

// Close releases the bridge and the store
func (r *Context) Close() error {
	return errors.Join(r.Bridge.Close(), r.Store.Close())
}
