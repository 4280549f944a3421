package dto

import "github.com/noah-isme/transfer-board-api/internal/models"

// CreateTransferRequest payload for requesting a patient transfer.
type CreateTransferRequest struct {
	PatientName          string                  `json:"patient_name" validate:"required,max=100"`
	PatientHistoryNumber *string                 `json:"patient_history_number,omitempty" validate:"omitempty,max=50"`
	PatientRoom          *string                 `json:"patient_room,omitempty" validate:"omitempty,max=50"`
	DestinationRoom      *string                 `json:"destination_room,omitempty" validate:"omitempty,max=50"`
	OriginSectorID       string                  `json:"origin_sector_id" validate:"required"`
	DestinationSectorID  string                  `json:"destination_sector_id" validate:"required"`
	TransferTypeID       string                  `json:"transfer_type_id" validate:"required"`
	Priority             models.TransferPriority `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Observation          *string                 `json:"observation,omitempty" validate:"omitempty,max=2000"`
}

// UpdateTransferRequest edits the non-lifecycle fields of a transfer.
type UpdateTransferRequest struct {
	PatientName          *string                  `json:"patient_name,omitempty" validate:"omitempty,min=1,max=100"`
	PatientHistoryNumber *string                  `json:"patient_history_number,omitempty" validate:"omitempty,max=50"`
	PatientRoom          *string                  `json:"patient_room,omitempty" validate:"omitempty,max=50"`
	DestinationRoom      *string                  `json:"destination_room,omitempty" validate:"omitempty,max=50"`
	OriginSectorID       *string                  `json:"origin_sector_id,omitempty" validate:"omitempty,min=1"`
	DestinationSectorID  *string                  `json:"destination_sector_id,omitempty" validate:"omitempty,min=1"`
	TransferTypeID       *string                  `json:"transfer_type_id,omitempty" validate:"omitempty,min=1"`
	Priority             *models.TransferPriority `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Observation          *string                  `json:"observation,omitempty" validate:"omitempty,max=2000"`
}

// TransitionRequest asks for a status change.
type TransitionRequest struct {
	Status models.TransferStatus `json:"status"`
}

// CancelTransferRequest carries the mandatory cancellation reason.
type CancelTransferRequest struct {
	Reason string `json:"reason"`
}

// TransferHistoryQuery mirrors the history filters.
type TransferHistoryQuery struct {
	Search   string
	Status   *models.TransferStatus
	Date     string
	Page     int
	PageSize int
}

// ActiveBoardResponse is the live queue plus per-status counters.
type ActiveBoardResponse struct {
	Transfers []models.Transfer            `json:"transfers"`
	Counts    []models.TransferStatusCount `json:"counts"`
}
