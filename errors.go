package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials = goerrors.TextCodeInvalidCredentials
	TextCodeTokenMalformed     = goerrors.TextCodeTokenMalformed
	TextCodeTokenExpired       = goerrors.TextCodeTokenExpired
	TextCodeSignatureInvalid   = "TOKEN_SIGNATURE_INVALID"
	TextCodeSessionNotFound    = goerrors.TextCodeSessionNotFound
	TextCodeSessionInactive    = "SESSION_INACTIVE"
	TextCodeSessionExpired     = "SESSION_EXPIRED"
	TextCodeForbidden          = "FORBIDDEN"
	TextCodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	TextCodeEmptyPassword      = goerrors.TextCodeEmptyPassword
	TextCodePasswordTooLong    = "PASSWORD_TOO_LONG"
)

// ErrInvalidCredentials is returned for unknown users, inactive users and
// wrong secrets alike.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed token could not be parsed or has the wrong type
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrSignatureInvalid token was signed with an unknown key or tampered with
var ErrSignatureInvalid = goerrors.New("token signature is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeSignatureInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired token signature is valid but exp is in the past
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionNotFound no session row matches the given id
var ErrSessionNotFound = goerrors.New("session not found", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionInactive session has been terminated
var ErrSessionInactive = goerrors.New("session is no longer active", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionInactive).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionExpired session is still flagged active but past its expiry
var ErrSessionExpired = goerrors.New("session is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrForbidden identity role is not allowed on the route
var ErrForbidden = goerrors.New("access denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrNoEmptyString password must not be empty
var ErrNoEmptyString = goerrors.New("password can't be an empty string", goerrors.CategoryBadInput).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// storageError wraps a driver failure. It is the only error class that
// should surface as a server fault.
func storageError(err error, operation string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "session storage unavailable").
		WithTextCode(TextCodeStorageUnavailable).
		WithCode(goerrors.CodeInternal).
		WithMetadata(map[string]any{"operation": operation})
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// IsInvalidCredentials reports a failed credential check
func IsInvalidCredentials(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredentials)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}

// IsMalformedError will check for malformed tokens
func IsMalformedError(err error) bool {
	return hasTextCode(err, TextCodeTokenMalformed)
}

// IsSignatureInvalidError will check for tampered tokens
func IsSignatureInvalidError(err error) bool {
	return hasTextCode(err, TextCodeSignatureInvalid)
}

// IsSessionError reports any session liveness failure
func IsSessionError(err error) bool {
	return hasTextCode(err, TextCodeSessionNotFound) ||
		hasTextCode(err, TextCodeSessionInactive) ||
		hasTextCode(err, TextCodeSessionExpired)
}

// IsForbidden reports a role mismatch
func IsForbidden(err error) bool {
	return hasTextCode(err, TextCodeForbidden)
}

// IsStorageUnavailable reports a storage failure
func IsStorageUnavailable(err error) bool {
	return hasTextCode(err, TextCodeStorageUnavailable)
}
