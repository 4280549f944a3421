package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/transfer-board-api/internal/middleware"
	"github.com/noah-isme/transfer-board-api/internal/models"
	"github.com/noah-isme/transfer-board-api/internal/service"
	"github.com/noah-isme/transfer-board-api/pkg/response"
)

type analyticsService interface {
	TransferMetrics(ctx context.Context, session models.Session, filter models.TransferFilter) (*models.TransferMetrics, bool, error)
	SystemMetrics(session models.Session) (models.SystemMetrics, error)
}

// AnalyticsHandler exposes the admin statistics tab.
type AnalyticsHandler struct {
	analytics analyticsService
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics analyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Transfers godoc
// @Summary Transfer statistics
// @Description Mean wait, mean transit and demand by origin sector over the filtered history
// @Tags Stats
// @Produce json
// @Param q query string false "Patient name or history number"
// @Param status query string false "Status"
// @Param date query string false "Requested date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /stats/transfers [get]
func (h *AnalyticsHandler) Transfers(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	start := time.Now()
	filter, err := service.BuildTransferFilter(c.Query("q"), queryStatus(c), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	metrics, cacheHit, err := h.analytics.TransferMetrics(c.Request.Context(), session, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, metrics, nil, middleware.ResponseMeta(c, start))
}

// System godoc
// @Summary Service instrumentation snapshot
// @Tags Stats
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stats/system [get]
func (h *AnalyticsHandler) System(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	start := time.Now()
	metrics, err := h.analytics.SystemMetrics(session)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, metrics, nil, middleware.ResponseMeta(c, start))
}
