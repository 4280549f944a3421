package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin              = "LOGIN"
	AuditActionLogout             = "LOGOUT"
	AuditActionTransferCreate     = "TRANSFER_CREATE"
	AuditActionTransferUpdate     = "TRANSFER_UPDATE"
	AuditActionTransferTransition = "TRANSFER_TRANSITION"
	AuditActionTransferCancel     = "TRANSFER_CANCEL"
	AuditActionTransferDelete     = "TRANSFER_DELETE"
	AuditActionReportRequest      = "REPORT_REQUEST"
	AuditActionReportDownload     = "REPORT_DOWNLOAD"
	AuditActionHistoryView        = "HISTORY_VIEW"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Role       string    `db:"role" json:"role"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
