package auth_test

import (
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-bakery-auth"
)

func TestHashPassword(t *testing.T) {
	hash, err := auth.HashPassword("rye-sourdough-7")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2a$"))
	assert.NoError(t, auth.ComparePasswordAndHash("rye-sourdough-7", hash))

	_, err = auth.HashPassword("")
	assert.ErrorIs(t, err, auth.ErrNoEmptyString)

	_, err = auth.HashPassword(strings.Repeat("b", 73))
	require.Error(t, err)
	assert.True(t, goerrors.IsCategory(err, goerrors.CategoryBadInput))

	_, err = auth.HashPassword(strings.Repeat("b", 72))
	assert.NoError(t, err)
}

func TestComparePasswordAndHash(t *testing.T) {
	hash := testPasswordHash(t)

	assert.NoError(t, auth.ComparePasswordAndHash(testPassword, hash))
	assert.ErrorIs(t, auth.ComparePasswordAndHash("baguette", hash), auth.ErrInvalidCredentials)

	err := auth.ComparePasswordAndHash(testPassword, "not-a-bcrypt-hash")
	require.Error(t, err)
	assert.False(t, auth.IsInvalidCredentials(err), "a broken hash is not a wrong password")
}

func TestPasswordNeedsRehash(t *testing.T) {
	current, err := bcrypt.Cost([]byte(testPasswordHash(t)))
	require.NoError(t, err)

	weak, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	assert.False(t, auth.PasswordNeedsRehash(testPasswordHash(t)))
	assert.True(t, auth.PasswordNeedsRehash("not-a-bcrypt-hash"))
	assert.Equal(t, current > bcrypt.MinCost, auth.PasswordNeedsRehash(string(weak)))
}
