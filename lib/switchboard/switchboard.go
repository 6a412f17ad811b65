package switchboard

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/HORNET-Storage/trunk-relay/lib/logging"
	"github.com/HORNET-Storage/trunk-relay/lib/metrics"
	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

// Switchboard is the per-process registry of connected clients. Fan-out only
// takes the read lock; connect and disconnect take the write lock.
type Switchboard struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client

	queueSize int
	workers   int
	metrics   *metrics.Metrics
}

// New creates a switchboard whose clients buffer up to queueSize outbound
// frames. workers bounds how many clients are delivered to concurrently.
func New(queueSize, workers int, m *metrics.Metrics) *Switchboard {
	if queueSize <= 0 {
		queueSize = 32
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0) * 8
	}

	return &Switchboard{
		clients:   make(map[uuid.UUID]*Client),
		queueSize: queueSize,
		workers:   workers,
		metrics:   m,
	}
}

// Register adds a client. Its context is derived from ctx.
func (s *Switchboard) Register(ctx context.Context, remoteAddr string) *Client {
	clientCtx, cancel := context.WithCancel(ctx)

	client := &Client{
		ID:            uuid.New(),
		RemoteAddr:    remoteAddr,
		ConnectedAt:   time.Now(),
		outbound:      make(chan []byte, s.queueSize),
		subscriptions: xsync.NewMapOf[string, *Subscription](),
		ctx:           clientCtx,
		cancel:        cancel,
		board:         s,
	}

	s.mu.Lock()
	s.clients[client.ID] = client
	s.mu.Unlock()

	s.metrics.ClientConnected()
	logging.Debug("Client registered", map[string]interface{}{
		"client": client.ID,
		"remote": remoteAddr,
	})

	return client
}

// Unregister removes the client and drops its subscriptions. It is safe to
// call more than once.
func (s *Switchboard) Unregister(client *Client) {
	s.mu.Lock()
	_, ok := s.clients[client.ID]
	delete(s.clients, client.ID)
	s.mu.Unlock()

	client.CloseWith(CloseNormal, "")

	if !ok {
		return
	}

	client.clearSubscriptions()
	s.metrics.ClientDisconnected()
	logging.Debug("Client unregistered", map[string]interface{}{
		"client":   client.ID,
		"remote":   client.RemoteAddr,
		"duration": time.Since(client.ConnectedAt).Round(time.Millisecond),
	})
}

func (s *Switchboard) Client(id uuid.UUID) (*Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[id]
	return client, ok
}

func (s *Switchboard) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Dispatch delivers event to every live subscription it matches. Clients are
// served concurrently, bounded by the worker limit, and Dispatch returns once
// every client has been handled so per-client order follows call order.
// It returns the number of frames queued.
func (s *Switchboard) Dispatch(ctx context.Context, event *types.Event) (int, error) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	raw, err := json.Marshal(event)
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, client := range s.clients {
		if client.Alive() {
			clients = append(clients, client)
		}
	}
	s.mu.RUnlock()

	var delivered atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, client := range clients {
		client := client
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			delivered.Add(int64(s.deliver(client, event, raw)))
			return nil
		})
	}
	err = g.Wait()

	return int(delivered.Load()), err
}

func (s *Switchboard) deliver(client *Client, event *types.Event, raw []byte) int {
	delivered := 0

	client.subscriptions.Range(func(id string, sub *Subscription) bool {
		if !sub.Filters.Match(event) {
			return true
		}

		frame, err := types.EncodeEventFrame(id, raw)
		if err != nil {
			logging.Error("Failed to encode event frame", map[string]interface{}{"error": err})
			return true
		}

		if !client.TrySend(frame) {
			s.metrics.Dropped()
			logging.Warn("Dropping client that is not keeping up", map[string]interface{}{
				"client": client.ID,
				"remote": client.RemoteAddr,
			})
			return false
		}

		s.metrics.Delivered()
		delivered++
		return true
	})

	return delivered
}

// Run dispatches every event received from the bridge until ctx is done or
// events is closed.
func (s *Switchboard) Run(ctx context.Context, events <-chan *types.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := s.Dispatch(ctx, event); err != nil && ctx.Err() == nil {
				logging.Error("Fan-out failed", map[string]interface{}{
					"id":    event.ID,
					"error": err,
				})
			}
		}
	}
}
