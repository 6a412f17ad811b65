package bridge

import (
	"context"
	"fmt"

	"github.com/HORNET-Storage/trunk-relay/lib/logging"
	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

// Transport is a topic based publish/subscribe channel. A message published
// on a topic is delivered to every subscriber of that topic, including
// subscribers in the publishing process.
type Transport interface {
	Publish(ctx context.Context, topic string, data []byte) error
	Subscribe(ctx context.Context, topic string) (<-chan []byte, error)
	Close() error
}

// Bridge publishes accepted events to the shared channel and decodes what
// every relay process published back into events.
type Bridge struct {
	transport Transport
	codec     Codec
	topic     string
}

func New(transport Transport, codec Codec, topic string) *Bridge {
	return &Bridge{
		transport: transport,
		codec:     codec,
		topic:     topic,
	}
}

// Publish encodes event and publishes it on the bridge topic
func (b *Bridge) Publish(ctx context.Context, event *types.Event) error {
	data, err := b.codec.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}

	if err := b.transport.Publish(ctx, b.topic, data); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}

	return nil
}

// Subscribe starts receiving from the bridge topic. The returned channel is
// closed when ctx is cancelled or the transport stops delivering. Messages
// that fail to decode are logged and skipped.
func (b *Bridge) Subscribe(ctx context.Context) (<-chan *types.Event, error) {
	messages, err := b.transport.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, err
	}

	events := make(chan *types.Event, subscriberBuffer)
	go func() {
		defer close(events)

		for data := range messages {
			event := &types.Event{}
			if err := b.codec.Unmarshal(data, event); err != nil {
				logging.Warn("Dropping undecodable bridge message", map[string]interface{}{
					"codec": b.codec.Name(),
					"error": err,
				})
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

func (b *Bridge) Close() error {
	return b.transport.Close()
}
