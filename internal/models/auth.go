package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest selects a role and proves it with the role's access code.
type LoginRequest struct {
	Role        UserRole `json:"role" validate:"required,oneof=requester-sector transporter imaging-sector admin"`
	SectorID    *string  `json:"sector_id,omitempty" validate:"omitempty,max=64"`
	Code        string   `json:"code" validate:"required,max=64"`
	DisplayName string   `json:"display_name,omitempty" validate:"omitempty,max=100"`
	IP          string   `json:"-"`
	UserAgent   string   `json:"-"`
}

// LoginResponse returns the issued token and session info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	Session     Session   `json:"session"`
	IssuedAt    time.Time `json:"issued_at"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID      string   `json:"user_id"`
	Role        UserRole `json:"role"`
	SectorID    *string  `json:"sector_id,omitempty"`
	DisplayName string   `json:"display_name"`
	jwt.RegisteredClaims
}

// Session converts the claims into the explicit session passed to services.
func (c *JWTClaims) Session() Session {
	if c == nil {
		return Session{}
	}
	return Session{ActorID: c.UserID, Role: c.Role, SectorID: c.SectorID, DisplayName: c.DisplayName}
}

// AccessCode grants a role (optionally scoped to a sector) to whoever knows the code.
type AccessCode struct {
	ID        string    `db:"id" json:"id"`
	Role      UserRole  `db:"role" json:"role"`
	SectorID  *string   `db:"sector_id" json:"sector_id,omitempty"`
	CodeHash  string    `db:"code_hash" json:"-"`
	Label     string    `db:"label" json:"label"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
