package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/transfer-board-api/internal/dto"
	"github.com/noah-isme/transfer-board-api/internal/models"
	appErrors "github.com/noah-isme/transfer-board-api/pkg/errors"
	"github.com/noah-isme/transfer-board-api/pkg/response"
)

type transferService interface {
	CreateTransfer(ctx context.Context, session models.Session, req dto.CreateTransferRequest) (*models.Transfer, error)
	EditTransfer(ctx context.Context, session models.Session, id string, req dto.UpdateTransferRequest) (*models.Transfer, error)
	RequestTransition(ctx context.Context, session models.Session, id string, to models.TransferStatus) (*models.Transfer, error)
	CancelTransfer(ctx context.Context, session models.Session, id, reason string) (*models.Transfer, error)
	DeleteTransfer(ctx context.Context, session models.Session, id string) error
	GetTransfer(ctx context.Context, session models.Session, id string) (*models.Transfer, error)
	ListActive(ctx context.Context, session models.Session) (*dto.ActiveBoardResponse, error)
	ListHistory(ctx context.Context, session models.Session, query dto.TransferHistoryQuery) ([]models.Transfer, *models.Pagination, error)
}

// TransferHandler exposes the transfer board endpoints.
type TransferHandler struct {
	service transferService
}

// NewTransferHandler constructs the handler.
func NewTransferHandler(svc transferService) *TransferHandler {
	return &TransferHandler{service: svc}
}

// Active godoc
// @Summary Live transfer board
// @Description Non-terminal transfers, latest first, with per-status counters
// @Tags Transfers
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /transfers/active [get]
func (h *TransferHandler) Active(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	board, err := h.service.ListActive(c.Request.Context(), session)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, board, nil)
}

// History godoc
// @Summary Transfer history
// @Tags Transfers
// @Produce json
// @Param q query string false "Patient name or history number"
// @Param status query string false "Status"
// @Param date query string false "Requested date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /transfers/history [get]
func (h *TransferHandler) History(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	page, err := queryInt(c, "page", 1)
	if err != nil {
		response.Error(c, err)
		return
	}
	pageSize, err := queryInt(c, "pageSize", 0)
	if err != nil {
		response.Error(c, err)
		return
	}
	transfers, pagination, err := h.service.ListHistory(c.Request.Context(), session, dto.TransferHistoryQuery{
		Search:   c.Query("q"),
		Status:   queryStatus(c),
		Date:     c.Query("date"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transfers, pagination)
}

// Get godoc
// @Summary Transfer details
// @Tags Transfers
// @Produce json
// @Param id path string true "Transfer ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /transfers/{id} [get]
func (h *TransferHandler) Get(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	transfer, err := h.service.GetTransfer(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transfer, nil)
}

// Create godoc
// @Summary Request a transfer
// @Tags Transfers
// @Accept json
// @Produce json
// @Param payload body dto.CreateTransferRequest true "Transfer"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /transfers [post]
func (h *TransferHandler) Create(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	var req dto.CreateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid transfer payload"))
		return
	}
	transfer, err := h.service.CreateTransfer(c.Request.Context(), session, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Mutated(c, http.StatusCreated, transfer)
}

// Update godoc
// @Summary Edit transfer fields
// @Tags Transfers
// @Accept json
// @Produce json
// @Param id path string true "Transfer ID"
// @Param payload body dto.UpdateTransferRequest true "Fields"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /transfers/{id} [put]
func (h *TransferHandler) Update(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	var req dto.UpdateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid transfer payload"))
		return
	}
	transfer, err := h.service.EditTransfer(c.Request.Context(), session, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Mutated(c, http.StatusOK, transfer)
}

// Accept godoc
// @Summary Accept a pending transfer
// @Tags Transfers
// @Produce json
// @Param id path string true "Transfer ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /transfers/{id}/accept [post]
func (h *TransferHandler) Accept(c *gin.Context) {
	h.transition(c, models.TransferStatusInProgress)
}

// Complete godoc
// @Summary Complete an in-progress transfer
// @Tags Transfers
// @Produce json
// @Param id path string true "Transfer ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /transfers/{id}/complete [post]
func (h *TransferHandler) Complete(c *gin.Context) {
	h.transition(c, models.TransferStatusCompleted)
}

// Transition godoc
// @Summary Request a status transition
// @Tags Transfers
// @Accept json
// @Produce json
// @Param id path string true "Transfer ID"
// @Param payload body dto.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /transfers/{id}/transition [post]
func (h *TransferHandler) Transition(c *gin.Context) {
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid transition payload"))
		return
	}
	h.transition(c, req.Status)
}

// Cancel godoc
// @Summary Cancel a transfer
// @Tags Transfers
// @Accept json
// @Produce json
// @Param id path string true "Transfer ID"
// @Param payload body dto.CancelTransferRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /transfers/{id}/cancel [post]
func (h *TransferHandler) Cancel(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	var req dto.CancelTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancel payload"))
		return
	}
	transfer, err := h.service.CancelTransfer(c.Request.Context(), session, c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Mutated(c, http.StatusOK, transfer)
}

// Delete godoc
// @Summary Delete a transfer
// @Tags Transfers
// @Produce json
// @Param id path string true "Transfer ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /transfers/{id} [delete]
func (h *TransferHandler) Delete(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.service.DeleteTransfer(c.Request.Context(), session, id); err != nil {
		response.Error(c, err)
		return
	}
	response.Mutated(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}

func (h *TransferHandler) transition(c *gin.Context, to models.TransferStatus) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	transfer, err := h.service.RequestTransition(c.Request.Context(), session, c.Param("id"), to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Mutated(c, http.StatusOK, transfer)
}
