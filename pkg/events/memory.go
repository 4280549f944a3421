package events

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus for single-instance deployments and tests.
type MemoryBus struct {
	mu     sync.RWMutex
	hubs   map[string]map[chan Message]struct{}
	buffer int
	closed bool
}

// NewMemoryBus constructs a MemoryBus with the given per-subscriber buffer.
func NewMemoryBus(buffer int) *MemoryBus {
	return &MemoryBus{hubs: make(map[string]map[chan Message]struct{}), buffer: bufferSize(buffer)}
}

// Publish delivers payload to current subscribers of channel without blocking.
func (b *MemoryBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for ch := range b.hubs[channel] {
		msg := Message{Channel: channel, Payload: append([]byte(nil), payload...)}
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber on channel.
func (b *MemoryBus) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if b.hubs[channel] == nil {
		b.hubs[channel] = make(map[chan Message]struct{})
	}
	ch := make(chan Message, b.buffer)
	b.hubs[channel][ch] = struct{}{}
	return newSubscription(ctx, ch, func() { b.remove(channel, ch) }), nil
}

// Subscribers returns the number of live subscribers on channel.
func (b *MemoryBus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.hubs[channel])
}

// Close releases every subscriber.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for channel, subscribers := range b.hubs {
		for ch := range subscribers {
			close(ch)
		}
		delete(b.hubs, channel)
	}
	return nil
}

func (b *MemoryBus) remove(channel string, ch chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subscribers, ok := b.hubs[channel]
	if !ok {
		return
	}
	if _, ok := subscribers[ch]; !ok {
		return
	}
	delete(subscribers, ch)
	close(ch)
	if len(subscribers) == 0 {
		delete(b.hubs, channel)
	}
}
