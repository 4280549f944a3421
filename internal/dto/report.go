package dto

import "github.com/noah-isme/transfer-board-api/internal/models"

// ReportRequest captures POST /reports/transfers payload.
type ReportRequest struct {
	Type   models.ReportType      `json:"type"`
	Format models.ReportFormat    `json:"format"`
	Search string                 `json:"search,omitempty"`
	Status *models.TransferStatus `json:"status,omitempty"`
	Date   *string                `json:"date,omitempty"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
