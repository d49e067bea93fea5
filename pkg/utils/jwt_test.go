package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateTokenPair(t *testing.T) {
	svc := NewJWTService("unit-test-secret")

	access, refresh, expiresIn, err := svc.GenerateTokenPair("user-1", "alice@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)
	assert.Greater(t, expiresIn, int64(0))

	claims, err := svc.ValidateToken(access)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "access", claims.Type)

	refreshClaims, err := svc.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, "refresh", refreshClaims.Type)

	// Access tokens are not valid refresh tokens.
	_, err = svc.ValidateRefreshToken(access)
	assert.Error(t, err)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	svc := NewJWTService("secret-a")
	access, _, _, err := svc.GenerateTokenPair("user-1", "alice@example.com")
	require.NoError(t, err)

	other := NewJWTService("secret-b")
	_, err = other.ValidateToken(access)
	assert.Error(t, err)
}

func TestRefreshAccessToken(t *testing.T) {
	svc := NewJWTService("unit-test-secret")
	_, refresh, _, err := svc.GenerateTokenPair("user-1", "alice@example.com")
	require.NoError(t, err)

	access, expiresIn, err := svc.RefreshAccessToken(refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.Greater(t, expiresIn, int64(0))
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct-horse", hash)

	assert.True(t, CheckPassword(hash, "correct-horse"))
	assert.False(t, CheckPassword(hash, "wrong"))
}
