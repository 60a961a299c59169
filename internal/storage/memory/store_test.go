package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/storage"
)

func newTestStore() *Store {
	return NewStore(10 * time.Minute)
}

func seedUser(t *testing.T, store *Store, username string) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:            uuid.New().String(),
		Username:      username,
		AccessKeyHash: uuid.New().String(),
		Role:          domain.RoleUser,
		IsActive:      true,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, store.CreateUser(user))
	return user
}

func seedProxies(t *testing.T, store *Store, n int) []domain.Proxy {
	t.Helper()
	proxies := make([]domain.Proxy, 0, n)
	for i := 0; i < n; i++ {
		proxies = append(proxies, domain.Proxy{
			ID:          uuid.New().String(),
			ProxyString: fmt.Sprintf("192.168.1.%d:8080:user:pass", i),
			CreatedAt:   time.Now(),
		})
	}
	require.NoError(t, store.CreateProxies(proxies))
	return proxies
}

func TestCreateUserDuplicate(t *testing.T) {
	store := newTestStore()
	user := seedUser(t, store, "alice")

	// Same username
	err := store.CreateUser(&domain.User{
		ID:            uuid.New().String(),
		Username:      "alice",
		AccessKeyHash: uuid.New().String(),
	})
	assert.ErrorIs(t, err, storage.ErrUserExists)

	// Same access key hash
	err = store.CreateUser(&domain.User{
		ID:            uuid.New().String(),
		Username:      "bob",
		AccessKeyHash: user.AccessKeyHash,
	})
	assert.ErrorIs(t, err, storage.ErrUserExists)
}

func TestCreateProxiesDuplicate(t *testing.T) {
	store := newTestStore()
	seeded := seedProxies(t, store, 3)

	err := store.CreateProxies([]domain.Proxy{{
		ID:          uuid.New().String(),
		ProxyString: seeded[0].ProxyString,
	}})
	assert.ErrorIs(t, err, storage.ErrProxyExists)

	// Failed insert must not change the pool
	total, _, err := store.CountProxies()
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestReserveProxies(t *testing.T) {
	store := newTestStore()
	user := seedUser(t, store, "alice")
	seedProxies(t, store, 5)

	now := time.Now()
	reserved, err := store.ReserveProxies(user.ID, 3, now)
	require.NoError(t, err)
	assert.Len(t, reserved, 3)

	total, reservedCount, err := store.CountProxies()
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 3, reservedCount)

	// Only 2 left, asking for 3 must fail without partial reservation
	other := seedUser(t, store, "bob")
	_, err = store.ReserveProxies(other.ID, 3, now)
	assert.ErrorIs(t, err, storage.ErrNotEnoughProxies)

	_, reservedCount, err = store.CountProxies()
	require.NoError(t, err)
	assert.Equal(t, 3, reservedCount)
}

func TestReserveSkipsHeldProxies(t *testing.T) {
	store := newTestStore()
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	seedProxies(t, store, 4)

	now := time.Now()
	first, err := store.ReserveProxies(alice.ID, 2, now)
	require.NoError(t, err)

	second, err := store.ReserveProxies(bob.ID, 2, now)
	require.NoError(t, err)

	held := make(map[string]bool)
	for _, p := range first {
		held[p.ID] = true
	}
	for _, p := range second {
		assert.False(t, held[p.ID], "proxy %s reserved twice", p.ID)
	}
}

func TestReserveReclaimsExpiredReservations(t *testing.T) {
	store := NewStore(time.Minute)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	seedProxies(t, store, 2)

	past := time.Now().Add(-2 * time.Minute)
	_, err := store.ReserveProxies(alice.ID, 2, past)
	require.NoError(t, err)

	// Alice's reservation is older than the TTL, Bob can take the records
	reserved, err := store.ReserveProxies(bob.ID, 2, time.Now())
	require.NoError(t, err)
	assert.Len(t, reserved, 2)
}

func TestConsumeProxies(t *testing.T) {
	store := newTestStore()
	user := seedUser(t, store, "alice")
	seedProxies(t, store, 5)

	now := time.Now()
	reserved, err := store.ReserveProxies(user.ID, 3, now)
	require.NoError(t, err)

	ids := make([]string, 0, len(reserved))
	for _, p := range reserved {
		ids = append(ids, p.ID)
	}

	count, err := store.ConsumeProxies(ids, user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Consumed records leave the pool
	total, _, err := store.CountProxies()
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	// Exactly one usage log for the whole batch
	logs, err := store.ListUsageLogsByUser(user.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 3, logs[0].Amount)
}

func TestConsumeProxiesConflict(t *testing.T) {
	store := newTestStore()
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	seedProxies(t, store, 3)

	now := time.Now()
	reserved, err := store.ReserveProxies(alice.ID, 3, now)
	require.NoError(t, err)

	ids := make([]string, 0, len(reserved))
	for _, p := range reserved {
		ids = append(ids, p.ID)
	}

	// Bob steals the records after Alice's reservation lapses
	require.NoError(t, store.ReleaseProxies(ids, alice.ID))
	_, err = store.ReserveProxies(bob.ID, 3, now)
	require.NoError(t, err)

	_, err = store.ConsumeProxies(ids, alice.ID, now)
	assert.ErrorIs(t, err, storage.ErrBatchConflict)

	// Nothing consumed, no usage log written
	total, _, err := store.CountProxies()
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	logs, err := store.ListUsageLogsByUser(alice.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestReleaseStaleReservations(t *testing.T) {
	store := newTestStore()
	user := seedUser(t, store, "alice")
	seedProxies(t, store, 4)

	past := time.Now().Add(-time.Hour)
	_, err := store.ReserveProxies(user.ID, 2, past)
	require.NoError(t, err)

	released, err := store.ReleaseStaleReservations(time.Now().Add(-30 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, released)

	_, reserved, err := store.CountProxies()
	require.NoError(t, err)
	assert.Equal(t, 0, reserved)
}

func TestDeleteAllProxies(t *testing.T) {
	store := newTestStore()
	seedProxies(t, store, 7)

	deleted, err := store.DeleteAllProxies()
	require.NoError(t, err)
	assert.Equal(t, 7, deleted)

	total, reserved, err := store.CountProxies()
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Equal(t, 0, reserved)

	// The pool accepts the same strings again after a wipe
	seedProxies(t, store, 2)
}

func TestDeleteUserKeepsUsageLogs(t *testing.T) {
	store := newTestStore()
	user := seedUser(t, store, "alice")
	seedProxies(t, store, 2)

	now := time.Now()
	reserved, err := store.ReserveProxies(user.ID, 2, now)
	require.NoError(t, err)

	ids := []string{reserved[0].ID, reserved[1].ID}
	_, err = store.ConsumeProxies(ids, user.ID, now)
	require.NoError(t, err)

	require.NoError(t, store.DeleteUser(user.ID))

	// Accounting survives account deletion
	logs, err := store.ListUsageLogsByUser(user.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	// Recent logs fall back to an empty username
	recent, err := store.ListRecentUsageLogs(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Empty(t, recent[0].Username)
}

func TestUsageSums(t *testing.T) {
	store := newTestStore()
	user := seedUser(t, store, "alice")
	seedProxies(t, store, 6)

	now := time.Now()
	for i := 0; i < 2; i++ {
		reserved, err := store.ReserveProxies(user.ID, 3, now)
		require.NoError(t, err)
		ids := make([]string, 0, 3)
		for _, p := range reserved {
			ids = append(ids, p.ID)
		}
		_, err = store.ConsumeProxies(ids, user.ID, now)
		require.NoError(t, err)
	}

	sum, err := store.SumUsage(user.ID, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 6, sum)

	sum, err = store.SumUsage(user.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, sum)

	all, err := store.SumUsageAll(now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 6, all)
}
