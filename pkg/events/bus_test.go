package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func receive(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func waitClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.C:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel not closed")
		}
	}
}

func TestMemoryBusFanOut(t *testing.T) {
	bus := NewMemoryBus(4)
	ctx := context.Background()

	first, err := bus.Subscribe(ctx, "transfers")
	require.NoError(t, err)
	second, err := bus.Subscribe(ctx, "transfers")
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, "other")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "transfers", []byte(`{"type":"UPDATE"}`)))
	require.Equal(t, `{"type":"UPDATE"}`, string(receive(t, first).Payload))
	require.Equal(t, `{"type":"UPDATE"}`, string(receive(t, second).Payload))
	select {
	case <-other.C:
		t.Fatal("unexpected delivery on other channel")
	default:
	}
}

func TestMemoryBusUnsubscribeOnCancel(t *testing.T) {
	bus := NewMemoryBus(1)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := bus.Subscribe(ctx, "transfers")
	require.NoError(t, err)
	require.Equal(t, 1, bus.Subscribers("transfers"))

	cancel()
	waitClosed(t, sub)
	require.Equal(t, 0, bus.Subscribers("transfers"))
	sub.Close()
}

func TestMemoryBusDropsWhenSubscriberIsSlow(t *testing.T) {
	bus := NewMemoryBus(1)
	ctx := context.Background()
	sub, err := bus.Subscribe(ctx, "transfers")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, bus.Publish(ctx, "transfers", []byte("1")))
	require.NoError(t, bus.Publish(ctx, "transfers", []byte("2")))
	require.Equal(t, "1", string(receive(t, sub).Payload))
	select {
	case msg := <-sub.C:
		t.Fatalf("expected second message to be dropped, got %s", msg.Payload)
	default:
	}
}

func TestMemoryBusClosed(t *testing.T) {
	bus := NewMemoryBus(1)
	sub, err := bus.Subscribe(context.Background(), "transfers")
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	waitClosed(t, sub)
	require.ErrorIs(t, bus.Publish(context.Background(), "transfers", nil), ErrClosed)
	_, err = bus.Subscribe(context.Background(), "transfers")
	require.ErrorIs(t, err, ErrClosed)
	sub.Close()
}

func TestRedisBusPublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus := NewRedisBus(client, zap.NewNop(), 8)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first, err := bus.Subscribe(ctx, "transfers")
	require.NoError(t, err)
	second, err := bus.Subscribe(ctx, "transfers")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "transfers", []byte("changed")))
	require.Equal(t, "changed", string(receive(t, first).Payload))
	msg := receive(t, second)
	require.Equal(t, "transfers", msg.Channel)
	require.Equal(t, "changed", string(msg.Payload))

	first.Close()
	waitClosed(t, first)
	second.Close()
	waitClosed(t, second)

	bus.mu.Lock()
	require.Empty(t, bus.hubs)
	bus.mu.Unlock()
}
