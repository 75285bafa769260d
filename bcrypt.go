package auth

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores everything past this many bytes
const maxPasswordBytes = 72

// HashPassword hashes a cleartext password with the build's bcrypt cost
func HashPassword(password string) (string, error) {
	switch {
	case password == "":
		return "", ErrNoEmptyString
	case len(password) > maxPasswordBytes:
		return "", goerrors.New("password is longer than 72 bytes", goerrors.CategoryBadInput).
			WithTextCode(TextCodePasswordTooLong).
			WithCode(goerrors.CodeBadRequest)
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost())
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "hash password")
	}
	return string(h), nil
}

// ComparePasswordAndHash returns ErrInvalidCredentials when password does
// not match hash. A malformed hash is reported as is.
func ComparePasswordAndHash(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	return err
}

// PasswordNeedsRehash reports whether hash was produced with a lower cost
// than the current one, or can not be parsed.
func PasswordNeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	return err != nil || cost < passwordHashCost()
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// burnPasswordCompare spends one bcrypt comparison against a throwaway hash
// so unknown identifiers take as long as wrong passwords.
func burnPasswordCompare(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), passwordHashCost())
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
