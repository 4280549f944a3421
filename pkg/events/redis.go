package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus fans Redis Pub/Sub messages out to local subscribers. One Redis
// subscription is shared per channel and closed when its last subscriber leaves.
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger
	buffer int

	mu     sync.Mutex
	hubs   map[string]*redisHub
	closed bool
}

type redisHub struct {
	pubsub      *redis.PubSub
	subscribers map[chan Message]struct{}
}

// NewRedisBus constructs a RedisBus on top of an existing client.
func NewRedisBus(client *redis.Client, logger *zap.Logger, buffer int) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{
		client: client,
		logger: logger,
		buffer: bufferSize(buffer),
		hubs:   make(map[string]*redisHub),
	}
}

// Publish sends payload to every instance subscribed to channel.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe registers a local subscriber, opening the Redis subscription on first use.
func (b *RedisBus) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	hub, ok := b.hubs[channel]
	if !ok {
		pubsub := b.client.Subscribe(ctx, channel)
		// wait for the server to confirm so no message published afterwards is missed
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return nil, fmt.Errorf("subscribe %s: %w", channel, err)
		}
		hub = &redisHub{pubsub: pubsub, subscribers: make(map[chan Message]struct{})}
		b.hubs[channel] = hub
		go b.fanOut(channel, hub)
		b.logger.Debug("redis channel subscribed", zap.String("channel", channel))
	}

	ch := make(chan Message, b.buffer)
	hub.subscribers[ch] = struct{}{}
	return newSubscription(ctx, ch, func() { b.remove(channel, hub, ch) }), nil
}

// Close releases every subscriber and Redis subscription. The client itself is left open.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var firstErr error
	for channel, hub := range b.hubs {
		for ch := range hub.subscribers {
			close(ch)
		}
		hub.subscribers = nil
		if err := hub.pubsub.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close subscription %s: %w", channel, err)
		}
		delete(b.hubs, channel)
	}
	return firstErr
}

func (b *RedisBus) fanOut(channel string, hub *redisHub) {
	for msg := range hub.pubsub.Channel() {
		b.mu.Lock()
		for ch := range hub.subscribers {
			select {
			case ch <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
			default:
				b.logger.Warn("subscriber buffer full, dropping event", zap.String("channel", channel))
			}
		}
		b.mu.Unlock()
	}
}

func (b *RedisBus) remove(channel string, hub *redisHub, ch chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := hub.subscribers[ch]; !ok {
		return
	}
	delete(hub.subscribers, ch)
	close(ch)
	if len(hub.subscribers) > 0 {
		return
	}
	if b.hubs[channel] == hub {
		delete(b.hubs, channel)
	}
	if err := hub.pubsub.Close(); err != nil {
		b.logger.Warn("close redis subscription", zap.String("channel", channel), zap.Error(err))
	}
}
