package bridge

import (
	"context"
	"errors"
	"sync"
)

const subscriberBuffer = 1024

var ErrClosed = errors.New("bridge transport closed")

// MemoryTransport delivers messages between publishers and subscribers of one
// process. It is used when the relay runs as a single instance.
type MemoryTransport struct {
	mu     sync.RWMutex
	topics map[string]map[*memorySubscriber]struct{}
	closed bool
}

type memorySubscriber struct {
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		topics: make(map[string]map[*memorySubscriber]struct{}),
	}
}

func (t *MemoryTransport) Publish(ctx context.Context, topic string, data []byte) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return ErrClosed
	}

	for sub := range t.topics[topic] {
		select {
		case sub.ch <- data:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (t *MemoryTransport) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	sub := &memorySubscriber{
		ch:   make(chan []byte, subscriberBuffer),
		done: make(chan struct{}),
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	if t.topics[topic] == nil {
		t.topics[topic] = make(map[*memorySubscriber]struct{})
	}
	t.topics[topic][sub] = struct{}{}
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.unsubscribe(topic, sub)
	}()

	return sub.ch, nil
}

func (t *MemoryTransport) unsubscribe(topic string, sub *memorySubscriber) {
	sub.once.Do(func() {
		// release publishers blocked on this subscriber before taking the write lock
		close(sub.done)

		t.mu.Lock()
		delete(t.topics[topic], sub)
		if len(t.topics[topic]) == 0 {
			delete(t.topics, topic)
		}
		t.mu.Unlock()

		close(sub.ch)
	})
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	var subs []*memorySubscriber
	var topics []string
	for topic, set := range t.topics {
		for sub := range set {
			subs = append(subs, sub)
			topics = append(topics, topic)
		}
	}
	t.mu.Unlock()

	for i, sub := range subs {
		t.unsubscribe(topics[i], sub)
	}
	return nil
}
