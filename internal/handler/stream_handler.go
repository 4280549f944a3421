package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/transfer-board-api/internal/models"
	appErrors "github.com/noah-isme/transfer-board-api/pkg/errors"
	"github.com/noah-isme/transfer-board-api/pkg/response"
)

type changeSubscriber interface {
	Subscribe(ctx context.Context) (<-chan models.ChangeEvent, func(), error)
}

// StreamHandler pushes transfer change events to board clients over SSE.
// Events only tell clients to re-read; the board is never patched from them.
type StreamHandler struct {
	changes   changeSubscriber
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewStreamHandler constructs the handler.
func NewStreamHandler(changes changeSubscriber, heartbeat time.Duration, logger *zap.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{changes: changes, heartbeat: heartbeat, logger: logger}
}

// Stream godoc
// @Summary Transfer change stream
// @Description Server-sent events: connected, heartbeat and transfer_change
// @Tags Transfers
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Router /transfers/stream [get]
func (h *StreamHandler) Stream(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	events, stop, err := h.changes.Subscribe(ctx)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, http.StatusServiceUnavailable, "change stream unavailable"))
		return
	}
	defer stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent("connected", gin.H{"role": session.Role, "timestamp": time.Now().UTC()})
	c.Writer.Flush()
	h.logger.Debug("change stream opened", zap.String("role", string(session.Role)))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for open := true; open; {
		select {
		case <-ctx.Done():
			open = false
		case <-ticker.C:
			c.SSEvent("heartbeat", gin.H{"timestamp": time.Now().UTC()})
			c.Writer.Flush()
		case event, more := <-events:
			if !more {
				open = false
				break
			}
			c.SSEvent("transfer_change", event)
			c.Writer.Flush()
		}
	}
	h.logger.Debug("change stream closed", zap.String("role", string(session.Role)))
}
