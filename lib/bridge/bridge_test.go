package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

func testEvent() *types.Event {
	return &types.Event{
		ID:        "5c83da77af1dec6d7289834998ad7aafbd9e2191396d75ec3cc27f5a77226f36",
		PubKey:    "f86c44a2de95d9149b51c6a29afeabba264c18e2fa7c49de93424a0c56947785",
		CreatedAt: 1700000000,
		Kind:      1,
		Tags:      types.Tags{{"t", "nostr"}, {"e", "abc", "wss://relay"}},
		Content:   "hello <world> & \"friends\"",
		Sig:       "908a15e46fb4d8675bab026fc230a0e3542bfade63da02d542fb78b2a8513fcd0092619a2c8c1221e581946e0191f2af505dfdf8657a414dbca329186f009262",
	}
}

func receive(t *testing.T, events <-chan *types.Event) *types.Event {
	t.Helper()

	select {
	case event, ok := <-events:
		require.True(t, ok, "bridge channel closed")
		return event
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for bridge event")
		return nil
	}
}

func TestCodecsPreserveEvents(t *testing.T) {
	for _, name := range []string{"json", "cbor"} {
		codec, err := NewCodec(name)
		require.NoError(t, err)

		data, err := codec.Marshal(testEvent())
		require.NoError(t, err)

		var decoded types.Event
		require.NoError(t, codec.Unmarshal(data, &decoded))
		assert.Equal(t, testEvent(), &decoded, name)
	}

	_, err := NewCodec("xml")
	assert.Error(t, err)
}

func TestCBORCodecNormalisesEmptyTags(t *testing.T) {
	event := testEvent()
	event.Tags = nil

	data, err := CBORCodec{}.Marshal(event)
	require.NoError(t, err)

	var decoded types.Event
	require.NoError(t, CBORCodec{}.Unmarshal(data, &decoded))
	assert.NotNil(t, decoded.Tags)
	assert.Empty(t, decoded.Tags)
}

func TestMemoryBridgeDeliversToEverySubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := NewMemoryTransport()
	defer transport.Close()

	// two bridges on one transport stand in for two relay processes
	a := New(transport, JSONCodec{}, "events")
	b := New(transport, JSONCodec{}, "events")

	fromA, err := a.Subscribe(ctx)
	require.NoError(t, err)
	fromB, err := b.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Publish(ctx, testEvent()))

	assert.Equal(t, testEvent(), receive(t, fromA))
	assert.Equal(t, testEvent(), receive(t, fromB))
}

func TestMemorySubscriptionEndsWithContext(t *testing.T) {
	transport := NewMemoryTransport()
	defer transport.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := New(transport, JSONCodec{}, "events").Subscribe(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("subscription was not closed")
	}

	// publishing after the subscriber left must not block
	require.NoError(t, New(transport, JSONCodec{}, "events").Publish(context.Background(), testEvent()))
}

func TestMemoryTransportRejectsAfterClose(t *testing.T) {
	transport := NewMemoryTransport()
	require.NoError(t, transport.Close())

	assert.ErrorIs(t, transport.Publish(context.Background(), "events", []byte("x")), ErrClosed)
	_, err := transport.Subscribe(context.Background(), "events")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUndecodableMessagesAreSkipped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := NewMemoryTransport()
	defer transport.Close()

	bridge := New(transport, JSONCodec{}, "events")
	events, err := bridge.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, transport.Publish(ctx, "events", []byte("not json")))
	require.NoError(t, bridge.Publish(ctx, testEvent()))

	assert.Equal(t, testEvent(), receive(t, events))
}

func TestRedisBridgeAcrossClients(t *testing.T) {
	server := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, codec := range []Codec{JSONCodec{}, CBORCodec{}} {
		publisherTransport, err := NewRedisTransport(ctx, "redis://"+server.Addr())
		require.NoError(t, err)
		subscriberTransport, err := NewRedisTransport(ctx, "redis://"+server.Addr())
		require.NoError(t, err)

		topic := "events:" + codec.Name()
		publisher := New(publisherTransport, codec, topic)
		subscriber := New(subscriberTransport, codec, topic)

		events, err := subscriber.Subscribe(ctx)
		require.NoError(t, err)

		require.NoError(t, publisher.Publish(ctx, testEvent()))
		assert.Equal(t, testEvent(), receive(t, events), codec.Name())

		publisher.Close()
		subscriber.Close()
	}
}

func TestRedisTransportBadURL(t *testing.T) {
	_, err := NewRedisTransport(context.Background(), "http://localhost")
	assert.Error(t, err)
}
