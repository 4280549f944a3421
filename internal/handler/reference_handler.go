package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/transfer-board-api/internal/models"
	"github.com/noah-isme/transfer-board-api/pkg/response"
)

type referenceService interface {
	Sectors(ctx context.Context) ([]models.Sector, error)
	TransferTypes(ctx context.Context) ([]models.TransferType, error)
}

// ReferenceHandler serves the form catalogues.
type ReferenceHandler struct {
	service referenceService
}

// NewReferenceHandler constructs the handler.
func NewReferenceHandler(svc referenceService) *ReferenceHandler {
	return &ReferenceHandler{service: svc}
}

// Sectors godoc
// @Summary List sectors
// @Tags Reference
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sectors [get]
func (h *ReferenceHandler) Sectors(c *gin.Context) {
	sectors, err := h.service.Sectors(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sectors, nil)
}

// TransferTypes godoc
// @Summary List transfer types
// @Tags Reference
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /transfer-types [get]
func (h *ReferenceHandler) TransferTypes(c *gin.Context) {
	types, err := h.service.TransferTypes(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, types, nil)
}
