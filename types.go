package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Username() string
	Email() string
	Role() string
}

// Config holds auth options
type Config interface {
	GetAccessSigningKey() string
	GetRefreshSigningKey() string
	GetIssuer() string
	// GetAccessTokenExpiration in hours
	GetAccessTokenExpiration() int
	// GetRefreshTokenExpiration in hours
	GetRefreshTokenExpiration() int
	// GetExtendedRefreshTokenExpiration in hours, used for "remember me"
	GetExtendedRefreshTokenExpiration() int
	GetContextKey() string
	GetTokenLookup() string
	GetAuthScheme() string
	GetRefreshCookieName() string
	GetRefreshCookiePath() string
	GetCookieSecure() bool
}

// UserRepository is the read-only view of the external user store
type UserRepository interface {
	FindActiveByID(ctx context.Context, id string) (*User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
}

// IdentityVerifier checks credentials and returns the matching identity
type IdentityVerifier interface {
	Verify(ctx context.Context, identifier, secret string) (Identity, error)
}

// SessionStore persists session records
type SessionStore interface {
	Create(ctx context.Context, ownerID string, deviceInfo DeviceInfo, originAddress string, ttl time.Duration) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	ListActiveByOwner(ctx context.Context, ownerID string) ([]*Session, error)
	TouchActivity(ctx context.Context, id string) error
	Terminate(ctx context.Context, id string, reason TerminationReason) error
	TerminateAllForOwner(ctx context.Context, ownerID string, reason TerminationReason) (int, error)
	Extend(ctx context.Context, id string, by time.Duration) (time.Time, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	PurgeTerminated(ctx context.Context, before time.Time) (int, error)
}

// TokenIssuer mints and verifies access and refresh tokens
type TokenIssuer interface {
	IssueAccessToken(identity Identity, sessionID string) (string, time.Time, error)
	IssueRefreshToken(identity Identity, sessionID string, rememberMe bool) (string, time.Time, error)
	DecodeAndVerify(token string, expected TokenType) (*JWTClaims, error)
	RefreshTTL(rememberMe bool) time.Duration
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	d.print("ERR", format, args...)
}

func (d defLogger) Warn(format string, args ...any) {
	d.print("WRN", format, args...)
}

func (d defLogger) Info(format string, args ...any) {
	d.print("INF", format, args...)
}

func (d defLogger) Debug(format string, args ...any) {
	d.print("DBG", format, args...)
}

// print supports both printf style calls and the key/value style used
// across this package: "message", "key", value, ...
func (d defLogger) print(level, format string, args ...any) {
	prefix := "[" + level + "] AUTH "
	if len(args) == 0 {
		fmt.Print(prefix + newline(format))
		return
	}
	if strings.Contains(format, "%") {
		fmt.Printf(prefix+newline(format), args...)
		return
	}

	var b strings.Builder
	b.WriteString(format)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	fmt.Print(prefix + newline(b.String()))
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
