package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-characters"

func newTestManager() *Manager {
	return NewManager(testSecret, "proxypool-test", 15*time.Minute, 7*24*time.Hour)
}

func TestGenerateAndValidateTokenPair(t *testing.T) {
	manager := newTestManager()

	pair, err := manager.GenerateTokenPair("user-1", "alice", "admin")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(900), pair.ExpiresIn)

	claims, err := manager.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "proxypool-test", claims.Issuer)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	manager := newTestManager()

	_, err := manager.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	manager := newTestManager()
	other := NewManager("another-secret-key-with-32-characters!", "proxypool-test", 15*time.Minute, time.Hour)

	pair, err := other.GenerateTokenPair("user-1", "alice", "user")
	require.NoError(t, err)

	_, err = manager.ValidateToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	manager := NewManager(testSecret, "proxypool-test", -time.Minute, time.Hour)

	pair, err := manager.GenerateTokenPair("user-1", "alice", "user")
	require.NoError(t, err)

	_, err = manager.ValidateToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestRefreshAccessToken(t *testing.T) {
	manager := newTestManager()

	pair, err := manager.GenerateTokenPair("user-1", "alice", "manager")
	require.NoError(t, err)

	accessToken, err := manager.RefreshAccessToken(pair.RefreshToken)
	require.NoError(t, err)

	claims, err := manager.ValidateToken(accessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "manager", claims.Role)
}
