package auth

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// CredentialVerifier checks an identifier/secret pair against the user
// repository. Every failure that is not a storage fault collapses into
// ErrInvalidCredentials so callers can not tell which part was wrong.
type CredentialVerifier struct {
	users  UserRepository
	logger Logger
}

var _ IdentityVerifier = (*CredentialVerifier)(nil)

// NewCredentialVerifier will create a new CredentialVerifier
func NewCredentialVerifier(users UserRepository) *CredentialVerifier {
	return &CredentialVerifier{
		users:  users,
		logger: defLogger{},
	}
}

func (v *CredentialVerifier) WithLogger(l Logger) *CredentialVerifier {
	v.logger = normalizeLogger(l)
	return v
}

// Verify will find the user, compare the secret and return the identity
func (v *CredentialVerifier) Verify(ctx context.Context, identifier, secret string) (Identity, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		burnPasswordCompare(secret)
		return nil, ErrInvalidCredentials
	}

	user, err := v.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if isRecordNotFound(err) || goerrors.IsNotFound(err) {
			burnPasswordCompare(secret)
			return nil, ErrInvalidCredentials
		}
		v.logger.Error("CredentialVerifier lookup failed", "error", err)
		return nil, storageError(err, "find_user")
	}

	if user == nil {
		burnPasswordCompare(secret)
		return nil, ErrInvalidCredentials
	}

	// compare before checking status so inactive accounts cost the same
	if err := ComparePasswordAndHash(secret, user.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	identity := newAccountIdentity(user)
	if !identity.canSignIn() {
		v.logger.Info("CredentialVerifier rejected account", "user_id", identity.ID(), "active", user.Active, "role", user.Role)
		return nil, ErrInvalidCredentials
	}

	if PasswordNeedsRehash(user.PasswordHash) {
		v.logger.Info("CredentialVerifier password hash uses an outdated cost", "user_id", identity.ID())
	}

	return identity, nil
}
