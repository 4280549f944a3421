package service

import "github.com/noah-isme/transfer-board-api/internal/models"

// transferTransitions is the complete edge set of the transfer lifecycle.
// IN_ADJUDICATION has no entry so nothing can enter or leave it.
var transferTransitions = map[models.TransferStatus][]models.TransferStatus{
	models.TransferStatusPending:    {models.TransferStatusInProgress, models.TransferStatusCancelled},
	models.TransferStatusInProgress: {models.TransferStatusCompleted, models.TransferStatusCancelled},
}

// ValidTransition reports whether from -> to is a legal lifecycle edge.
func ValidTransition(from, to models.TransferStatus) bool {
	for _, next := range transferTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from the given one.
func NextStatuses(from models.TransferStatus) []models.TransferStatus {
	next := transferTransitions[from]
	out := make([]models.TransferStatus, len(next))
	copy(out, next)
	return out
}

// transitionOperation maps a target status to the operation that authorizes it.
func transitionOperation(to models.TransferStatus) (Operation, bool) {
	switch to {
	case models.TransferStatusInProgress:
		return OperationAccept, true
	case models.TransferStatusCompleted:
		return OperationComplete, true
	case models.TransferStatusCancelled:
		return OperationCancel, true
	default:
		return "", false
	}
}
