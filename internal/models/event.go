package models

import "time"

// ChangeType describes what happened to a transfer row.
type ChangeType string

const (
	ChangeTypeInsert ChangeType = "INSERT"
	ChangeTypeUpdate ChangeType = "UPDATE"
	ChangeTypeDelete ChangeType = "DELETE"
)

// ChangeEvent is broadcast after every committed transfer mutation. Delivery
// is best-effort: receivers use it only as a hint to re-read.
type ChangeEvent struct {
	Type       ChangeType     `json:"type"`
	TransferID string         `json:"transfer_id"`
	Status     TransferStatus `json:"status,omitempty"`
	ActorRole  UserRole       `json:"actor_role,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
