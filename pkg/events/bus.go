// Package events provides a best-effort publish/subscribe bus used to fan out
// change notifications to connected clients.
package events

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("event bus closed")

// DefaultBuffer is the per-subscriber queue length when none is configured.
const DefaultBuffer = 100

// Message is a payload received on a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Bus publishes payloads to every current subscriber of a channel. Delivery is
// best-effort: slow subscribers drop messages instead of blocking publishers.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (*Subscription, error)
	Close() error
}

// Subscription delivers messages on C until Close is called or the context
// passed to Subscribe ends. C is closed once the subscription is released.
type Subscription struct {
	C <-chan Message

	done    chan struct{}
	once    sync.Once
	release func()
}

func newSubscription(ctx context.Context, ch <-chan Message, release func()) *Subscription {
	sub := &Subscription{C: ch, done: make(chan struct{}), release: release}
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.release()
	})
}

func bufferSize(n int) int {
	if n <= 0 {
		return DefaultBuffer
	}
	return n
}
