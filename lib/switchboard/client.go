package switchboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

// Close codes carried by a client when it is shut down from the relay side
const (
	CloseNormal         = 1000
	CloseProtocolError  = 1002
	ClosePolicyViolated = 1008
	CloseInternalError  = 1011
)

var ErrClientGone = errors.New("client disconnected")

// Subscription is never mutated after creation; replacing a subscription
// swaps the whole value so fan-out sees either the old or the new filters.
type Subscription struct {
	ID      string
	Filters types.Filters
}

// Client is one connection's entry in the switchboard
type Client struct {
	ID          uuid.UUID
	RemoteAddr  string
	ConnectedAt time.Time

	outbound      chan []byte
	subscriptions *xsync.MapOf[string, *Subscription]

	ctx    context.Context
	cancel context.CancelFunc
	dead   atomic.Bool

	closeOnce   sync.Once
	closeCode   int
	closeReason string

	board *Switchboard
}

// Context is cancelled when the client must stop, for whatever reason
func (c *Client) Context() context.Context {
	return c.ctx
}

// Outbound is drained by the connection writer
func (c *Client) Outbound() <-chan []byte {
	return c.outbound
}

// Send queues a frame, waiting for room. It fails once the client is gone.
func (c *Client) Send(ctx context.Context, frame []byte) error {
	if c.dead.Load() {
		return ErrClientGone
	}

	select {
	case c.outbound <- frame:
		return nil
	case <-c.ctx.Done():
		return ErrClientGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend queues a frame without waiting. A full queue means the client is
// not keeping up: it is marked dead and shut down.
func (c *Client) TrySend(frame []byte) bool {
	if c.dead.Load() {
		return false
	}

	select {
	case c.outbound <- frame:
		return true
	default:
		c.CloseWith(ClosePolicyViolated, "slow consumer: outbound queue full")
		return false
	}
}

// CloseWith marks the client dead and records the close frame the writer
// should send. Only the first call has any effect.
func (c *Client) CloseWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		c.dead.Store(true)
		c.cancel()
	})
}

// CloseReason returns the code and reason given to CloseWith. It is only
// meaningful after Context is done.
func (c *Client) CloseReason() (int, string) {
	if !c.dead.Load() {
		return CloseNormal, ""
	}
	return c.closeCode, c.closeReason
}

func (c *Client) Alive() bool {
	return !c.dead.Load()
}

// Subscribe installs or atomically replaces the subscription with id
func (c *Client) Subscribe(id string, filters types.Filters) {
	_, replaced := c.subscriptions.LoadAndStore(id, &Subscription{ID: id, Filters: filters})
	if !replaced {
		c.board.metrics.SubscriptionsChanged(1)
	}
}

// Unsubscribe removes the subscription with id and reports whether it existed
func (c *Client) Unsubscribe(id string) bool {
	_, existed := c.subscriptions.LoadAndDelete(id)
	if existed {
		c.board.metrics.SubscriptionsChanged(-1)
	}
	return existed
}

func (c *Client) Subscription(id string) (*Subscription, bool) {
	return c.subscriptions.Load(id)
}

func (c *Client) SubscriptionCount() int {
	return c.subscriptions.Size()
}

func (c *Client) clearSubscriptions() {
	removed := 0
	c.subscriptions.Range(func(id string, _ *Subscription) bool {
		if _, ok := c.subscriptions.LoadAndDelete(id); ok {
			removed++
		}
		return true
	})
	c.board.metrics.SubscriptionsChanged(-removed)
}
