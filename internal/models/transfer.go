package models

import "time"

// TransferStatus captures the lifecycle states of a patient transfer.
type TransferStatus string

const (
	TransferStatusPending TransferStatus = "PENDING"
	// TransferStatusInAdjudication is reserved; no transition enters or leaves it.
	TransferStatusInAdjudication TransferStatus = "IN_ADJUDICATION"
	TransferStatusInProgress     TransferStatus = "IN_PROGRESS"
	TransferStatusCompleted      TransferStatus = "COMPLETED"
	TransferStatusCancelled      TransferStatus = "CANCELLED"
)

// TransferStatuses lists every declared status in lifecycle order.
var TransferStatuses = []TransferStatus{
	TransferStatusPending,
	TransferStatusInAdjudication,
	TransferStatusInProgress,
	TransferStatusCompleted,
	TransferStatusCancelled,
}

// Valid reports whether s is a declared status.
func (s TransferStatus) Valid() bool {
	switch s {
	case TransferStatusPending, TransferStatusInAdjudication, TransferStatusInProgress,
		TransferStatusCompleted, TransferStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition may leave s.
func (s TransferStatus) Terminal() bool {
	return s == TransferStatusCompleted || s == TransferStatusCancelled
}

// ActiveTransferStatuses are shown on the live board.
var ActiveTransferStatuses = []TransferStatus{
	TransferStatusPending,
	TransferStatusInAdjudication,
	TransferStatusInProgress,
}

// TransferPriority classifies urgency.
type TransferPriority string

const (
	TransferPriorityLow    TransferPriority = "LOW"
	TransferPriorityMedium TransferPriority = "MEDIUM"
	TransferPriorityHigh   TransferPriority = "HIGH"
	TransferPriorityUrgent TransferPriority = "URGENT"
)

// Valid reports whether p is a declared priority.
func (p TransferPriority) Valid() bool {
	switch p {
	case TransferPriorityLow, TransferPriorityMedium, TransferPriorityHigh, TransferPriorityUrgent:
		return true
	default:
		return false
	}
}

// Transfer is a patient transfer request tracked on the board.
type Transfer struct {
	ID                    string           `db:"id" json:"id"`
	PatientName           string           `db:"patient_name" json:"patient_name"`
	PatientHistoryNumber  *string          `db:"patient_history_number" json:"patient_history_number,omitempty"`
	PatientRoom           *string          `db:"patient_room" json:"patient_room,omitempty"`
	DestinationRoom       *string          `db:"destination_room" json:"destination_room,omitempty"`
	OriginSectorID        string           `db:"origin_sector_id" json:"origin_sector_id"`
	DestinationSectorID   string           `db:"destination_sector_id" json:"destination_sector_id"`
	TransferTypeID        string           `db:"transfer_type_id" json:"transfer_type_id"`
	Priority              TransferPriority `db:"priority" json:"priority"`
	Status                TransferStatus   `db:"status" json:"status"`
	Observation           *string          `db:"observation" json:"observation,omitempty"`
	RequesterID           *string          `db:"requester_id" json:"requester_id,omitempty"`
	TransporterID         *string          `db:"transporter_id" json:"transporter_id,omitempty"`
	TransporterName       *string          `db:"transporter_name" json:"transporter_name,omitempty"`
	RequestedAt           time.Time        `db:"requested_at" json:"requested_at"`
	AcceptedAt            *time.Time       `db:"accepted_at" json:"accepted_at,omitempty"`
	CompletedAt           *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt             time.Time        `db:"updated_at" json:"updated_at"`
	OriginSectorName      *string          `db:"origin_sector_name" json:"origin_sector_name,omitempty"`
	DestinationSectorName *string          `db:"destination_sector_name" json:"destination_sector_name,omitempty"`
	TransferTypeName      *string          `db:"transfer_type_name" json:"transfer_type_name,omitempty"`
}

// TransferFilter constrains listing queries.
type TransferFilter struct {
	Statuses []TransferStatus
	Search   string
	// Date matches the UTC calendar date of requested_at.
	Date   *time.Time
	Limit  int
	Offset int
}

// TransferStatusUpdate is applied atomically with a status change.
type TransferStatusUpdate struct {
	Status          TransferStatus
	AcceptedAt      *time.Time
	CompletedAt     *time.Time
	Observation     *string
	TransporterID   *string
	TransporterName *string
	// GuardObservation makes the write also require the stored observation to
	// equal ExpectedObservation (nil matches NULL).
	GuardObservation    bool
	ExpectedObservation *string
}

// TransferPatch holds editable transfer fields; nil fields are left untouched.
type TransferPatch struct {
	PatientName          *string
	PatientHistoryNumber *string
	PatientRoom          *string
	DestinationRoom      *string
	OriginSectorID       *string
	DestinationSectorID  *string
	TransferTypeID       *string
	Priority             *TransferPriority
	Observation          *string
}

// Empty reports whether the patch changes nothing.
func (p TransferPatch) Empty() bool {
	return p.PatientName == nil && p.PatientHistoryNumber == nil && p.PatientRoom == nil &&
		p.DestinationRoom == nil && p.OriginSectorID == nil && p.DestinationSectorID == nil &&
		p.TransferTypeID == nil && p.Priority == nil && p.Observation == nil
}

// TransferStatusCount is one row of the live board counters.
type TransferStatusCount struct {
	Status TransferStatus `db:"status" json:"status"`
	Count  int            `db:"count" json:"count"`
}
