package auth

import (
	"testing"
	"time"

	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/storage/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUser(t *testing.T, store *memory.Store, active bool) (*domain.User, string) {
	t.Helper()

	key, err := GenerateAccessKey()
	require.NoError(t, err)

	now := time.Now()
	user := &domain.User{
		ID:            uuid.New().String(),
		Username:      "testuser-" + uuid.New().String()[:8],
		AccessKeyHash: HashAccessKey(key),
		Role:          domain.RoleUser,
		IsActive:      active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, store.CreateUser(user))
	return user, key
}

func TestService_LoginWithAccessKey(t *testing.T) {
	store := memory.NewStore(2 * time.Minute)
	service := NewService(store)

	user, key := newTestUser(t, store, true)

	got, err := service.LoginWithAccessKey(key)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.Username, got.Username)
}

func TestService_LoginWithAccessKey_Invalid(t *testing.T) {
	store := memory.NewStore(2 * time.Minute)
	service := NewService(store)

	newTestUser(t, store, true)

	_, err := service.LoginWithAccessKey("pk_not_a_real_key")
	assert.ErrorIs(t, err, ErrInvalidAccessKey)

	_, err = service.LoginWithAccessKey("")
	assert.ErrorIs(t, err, ErrInvalidAccessKey)
}

func TestService_LoginWithAccessKey_Inactive(t *testing.T) {
	store := memory.NewStore(2 * time.Minute)
	service := NewService(store)

	_, key := newTestUser(t, store, false)

	_, err := service.LoginWithAccessKey(key)
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestService_ResolveUser(t *testing.T) {
	store := memory.NewStore(2 * time.Minute)
	service := NewService(store)

	user, _ := newTestUser(t, store, true)

	got, err := service.ResolveUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Username, got.Username)

	// Deleting the account invalidates any outstanding token
	require.NoError(t, store.DeleteUser(user.ID))
	_, err = service.ResolveUser(user.ID)
	assert.ErrorIs(t, err, ErrInvalidAccessKey)
}

func TestService_ResolveUser_Deactivated(t *testing.T) {
	store := memory.NewStore(2 * time.Minute)
	service := NewService(store)

	user, _ := newTestUser(t, store, true)

	user.IsActive = false
	require.NoError(t, store.UpdateUser(user))

	_, err := service.ResolveUser(user.ID)
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestGenerateAccessKey(t *testing.T) {
	key1, err := GenerateAccessKey()
	require.NoError(t, err)
	key2, err := GenerateAccessKey()
	require.NoError(t, err)

	assert.True(t, len(key1) > 40)
	assert.Contains(t, key1, "pk_")
	assert.NotEqual(t, key1, key2)

	// Digest is deterministic and hex encoded
	assert.Equal(t, HashAccessKey(key1), HashAccessKey(key1))
	assert.Len(t, HashAccessKey(key1), 64)
}
