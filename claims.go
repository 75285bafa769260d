package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes access tokens from refresh tokens
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// AuthClaims represents structured JWT claims bound to a session
type AuthClaims interface {
	Subject() string
	UserID() string
	Role() string
	SessionID() string
	Type() TokenType
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims
type JWTClaims struct {
	jwt.RegisteredClaims
	UID       string    `json:"uid,omitempty"`
	UserRole  string    `json:"role,omitempty"`
	SID       string    `json:"sid,omitempty"`
	TokenType TokenType `json:"typ,omitempty"`
}

var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the global role
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// SessionID returns the session the token is bound to
func (c *JWTClaims) SessionID() string {
	return c.SID
}

// Type returns whether this is an access or a refresh token
func (c *JWTClaims) Type() TokenType {
	return c.TokenType
}

// HasRole checks if the user has a specific role
func (c *JWTClaims) HasRole(role string) bool {
	return c.UserRole == role
}

// IsAtLeast checks if the user's role is at least the minimum required role
func (c *JWTClaims) IsAtLeast(minRole string) bool {
	return UserRole(c.UserRole).IsAtLeast(UserRole(minRole))
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// claimsIdentity exposes verified claims as an Identity without a lookup.
// Username and email are not carried in tokens.
type claimsIdentity struct {
	claims *JWTClaims
}

func (c claimsIdentity) ID() string       { return c.claims.UserID() }
func (c claimsIdentity) Username() string { return "" }
func (c claimsIdentity) Email() string    { return "" }
func (c claimsIdentity) Role() string     { return c.claims.Role() }

// IdentityFromClaims returns the identity described by the token claims
func IdentityFromClaims(claims *JWTClaims) Identity {
	if claims == nil {
		return nil
	}
	return claimsIdentity{claims: claims}
}
