package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model. Rows are owned by the user management service,
// this package only reads them.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role          UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash" json:"-"`
	Active        bool       `bun:"is_active,notnull" json:"is_active"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// TerminationReason records why a session stopped being active
type TerminationReason string

const (
	// TerminationNone is the reason of every active session
	TerminationNone TerminationReason = ""
	// TerminationManual the owner logged out of this session
	TerminationManual TerminationReason = "manual"
	// TerminationForced the session was revoked by "logout everywhere"
	// or by an administrator
	TerminationForced TerminationReason = "forced"
	// TerminationTimeout the session expired and was swept
	TerminationTimeout TerminationReason = "timeout"
)

// IsValid reports whether the reason can be used to terminate a session
func (r TerminationReason) IsValid() bool {
	switch r {
	case TerminationManual, TerminationForced, TerminationTimeout:
		return true
	default:
		return false
	}
}

// DeviceInfo is informational client metadata (user agent, platform).
// It is never used for authorization decisions.
type DeviceInfo map[string]string

// Session is the server side record of one login on one device
type Session struct {
	bun.BaseModel    `bun:"table:sessions,alias:ses"`
	ID               uuid.UUID         `bun:"id,pk,type:uuid" json:"id"`
	OwnerID          uuid.UUID         `bun:"owner_id,notnull,type:uuid" json:"owner_id"`
	DeviceInfo       DeviceInfo        `bun:"device_info" json:"device_info,omitempty"`
	OriginAddress    string            `bun:"origin_address" json:"origin_address,omitempty"`
	CreatedAt        time.Time         `bun:"created_at,notnull" json:"created_at"`
	LastActivityAt   time.Time         `bun:"last_activity_at,notnull" json:"last_activity_at"`
	ExpiresAt        time.Time         `bun:"expires_at,notnull" json:"expires_at"`
	Active           bool              `bun:"active,notnull" json:"active"`
	TerminatedReason TerminationReason `bun:"terminated_reason,notnull" json:"terminated_reason,omitempty"`
	TerminatedAt     *time.Time        `bun:"terminated_at,nullzero" json:"terminated_at,omitempty"`
}

// IsLive reports whether the session can authorize requests at the given time
func (s *Session) IsLive(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.Active && now.Before(s.ExpiresAt)
}

// liveness maps the session state to the matching error, nil if live
func (s *Session) liveness(now time.Time) error {
	if s == nil {
		return ErrSessionNotFound
	}
	if !s.Active {
		return ErrSessionInactive
	}
	if !now.Before(s.ExpiresAt) {
		return ErrSessionExpired
	}
	return nil
}
