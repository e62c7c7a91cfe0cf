package auth

import (
	"errors"
	"time"
)

// Role is an authorisation tier. The set is closed: every role must appear
// in AllRoles and in the permission matrix.
type Role string

const (
	RoleManagement Role = "management"
	RoleDevOps     Role = "devops"
	RoleQA         Role = "qa"
	RoleDev        Role = "dev"
	RoleOther      Role = "other"
)

// AllRoles lists every valid role, most privileged first.
var AllRoles = []Role{RoleManagement, RoleDevOps, RoleQA, RoleDev, RoleOther}

// DefaultRole is assigned to new principals created without an explicit role.
const DefaultRole = RoleOther

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleManagement, RoleDevOps, RoleQA, RoleDev, RoleOther:
		return true
	default:
		return false
	}
}

// Principal is an authenticated identity (a user account).
// Principals are never deleted; deactivation clears IsActive.
type Principal struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // never serialised
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         Role       `json:"role"`
	IsActive     bool       `json:"is_active"`
	IsSuperuser  bool       `json:"-"`
	LastLogin    *time.Time `json:"last_login"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RefreshToken is a stored, opaque, long-lived credential bound to one principal.
// Only TokenHash is persisted; Token carries the raw value back to the caller
// at issue time and is empty when read from the Store.
type RefreshToken struct {
	ID          int64     `json:"id"`
	PrincipalID int64     `json:"principal_id"`
	Token       string    `json:"-"`
	TokenHash   string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	Revoked     bool      `json:"revoked"`
}

// Expired reports whether the token is past its expiry at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Usable reports whether the token can still mint access tokens.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && !t.Expired(now)
}

// Session records a login context. It is informational and never gates access.
type Session struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	PrincipalID  int64     `json:"principal_id"`
	ClientIP     string    `json:"client_ip,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Session field limits.
const (
	maxClientIPLength  = 45
	maxUserAgentLength = 500
)

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrTokenInvalid         = errors.New("invalid token")
	ErrTokenNotFound        = errors.New("refresh token not found or not active")
	ErrTokenExpired         = errors.New("refresh token has expired")
	ErrPrincipalNotFound    = errors.New("principal not found")
	ErrPrincipalInactive    = errors.New("principal is inactive")
	ErrPermissionDenied     = errors.New("not enough permissions")
	ErrDuplicateIdentity    = errors.New("duplicate identity")
	ErrSelfDeletionRejected = errors.New("cannot delete yourself")
	ErrInvalidInput         = errors.New("invalid input")
)
