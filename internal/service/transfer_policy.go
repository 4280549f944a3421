package service

import "github.com/noah-isme/transfer-board-api/internal/models"

// Operation names an action a session may attempt on a transfer.
type Operation string

const (
	OperationCreate      Operation = "create"
	OperationEditFields  Operation = "editFields"
	OperationAccept      Operation = "accept"
	OperationComplete    Operation = "complete"
	OperationCancel      Operation = "cancel"
	OperationDelete      Operation = "delete"
	OperationViewDetails Operation = "viewDetails"
	OperationViewHistory Operation = "viewHistory"
	OperationViewStats   Operation = "viewStats"
)

// IsAllowed is the single authorization decision for transfer operations.
// status is only consulted by operations whose permission depends on it.
func IsAllowed(role models.UserRole, op Operation, status models.TransferStatus) bool {
	if !role.Valid() {
		return false
	}
	switch op {
	case OperationCreate, OperationEditFields:
		return role == models.RoleRequesterSector || role == models.RoleImagingSector || role == models.RoleAdmin
	case OperationAccept, OperationComplete:
		return role == models.RoleTransporter
	case OperationCancel:
		if status.Terminal() {
			return false
		}
		return role == models.RoleAdmin || role == models.RoleRequesterSector
	case OperationDelete, OperationViewHistory, OperationViewStats:
		return role == models.RoleAdmin
	case OperationViewDetails:
		return true
	default:
		return false
	}
}
