package models

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleRequesterSector UserRole = "requester-sector"
	RoleTransporter     UserRole = "transporter"
	RoleImagingSector   UserRole = "imaging-sector"
	RoleAdmin           UserRole = "admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleRequesterSector, RoleTransporter, RoleImagingSector, RoleAdmin:
		return true
	default:
		return false
	}
}

// Session identifies the authenticated actor behind a request. It is built
// from token claims and passed explicitly into service calls.
type Session struct {
	ActorID     string   `json:"actor_id"`
	Role        UserRole `json:"role"`
	SectorID    *string  `json:"sector_id,omitempty"`
	DisplayName string   `json:"display_name"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
