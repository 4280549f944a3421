package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/transfer-board-api/internal/models"
	"github.com/noah-isme/transfer-board-api/pkg/events"
)

// DefaultChangeChannel is the bus channel carrying transfer change events.
const DefaultChangeChannel = "transfers:changes"

// TransferNotifier publishes and receives transfer change events over an event bus.
type TransferNotifier struct {
	bus     events.Bus
	channel string
	metrics *MetricsService
	logger  *zap.Logger
}

// NewTransferNotifier wires the notifier onto a bus channel.
func NewTransferNotifier(bus events.Bus, channel string, metrics *MetricsService, logger *zap.Logger) *TransferNotifier {
	if channel == "" {
		channel = DefaultChangeChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferNotifier{bus: bus, channel: channel, metrics: metrics, logger: logger}
}

// Publish broadcasts a change. Failures are reported but never retried.
func (n *TransferNotifier) Publish(ctx context.Context, event models.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	err = n.bus.Publish(ctx, n.channel, payload)
	n.metrics.RecordChangeEvent(err == nil)
	if err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Subscribe streams decoded change events until ctx ends or the returned
// cancel func is called. Undecodable payloads are skipped.
func (n *TransferNotifier) Subscribe(ctx context.Context) (<-chan models.ChangeEvent, func(), error) {
	sub, err := n.bus.Subscribe(ctx, n.channel)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe change events: %w", err)
	}
	n.metrics.StreamSubscribed(1)

	out := make(chan models.ChangeEvent)
	go func() {
		defer close(out)
		defer n.metrics.StreamSubscribed(-1)
		for msg := range sub.C {
			var event models.ChangeEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				n.logger.Warn("discarding malformed change event", zap.Error(err))
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				sub.Close()
				return
			}
		}
	}()
	return out, sub.Close, nil
}
