package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/storage"
	"proxypool/backend/internal/storage/memory"
)

func seedProxies(t *testing.T, store *memory.Store, n int) {
	t.Helper()

	proxies := make([]domain.Proxy, 0, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		proxies = append(proxies, domain.Proxy{
			ID:          uuid.New().String(),
			ProxyString: fmt.Sprintf("10.0.0.%d:808%d:user:pass", i+1, i%10),
			CreatedAt:   now,
		})
	}
	require.NoError(t, store.CreateProxies(proxies))
}

func newPoolService(store *memory.Store) *PoolService {
	return NewPoolService(store, 10*time.Minute, 1000, nil, nil)
}

func TestPoolService_Allocate(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	pool := newPoolService(store)
	seedProxies(t, store, 5)

	batch, err := pool.Allocate("user-1", 3)
	require.NoError(t, err)
	assert.Len(t, batch.Proxies, 3)
	assert.Equal(t, "user-1", batch.UserID)

	// Allocation reserves records but does not consume them
	total, reserved, err := store.CountProxies()
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 3, reserved)
}

func TestPoolService_Allocate_ExactPoolSize(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	pool := newPoolService(store)
	seedProxies(t, store, 3)

	batch, err := pool.Allocate("user-1", 3)
	require.NoError(t, err)
	assert.Len(t, batch.Proxies, 3)
}

func TestPoolService_Allocate_NotEnough(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	pool := newPoolService(store)
	seedProxies(t, store, 2)

	_, err := pool.Allocate("user-1", 5)
	assert.ErrorIs(t, err, storage.ErrNotEnoughProxies)

	// Failed allocation leaves nothing reserved
	_, reserved, err := store.CountProxies()
	require.NoError(t, err)
	assert.Equal(t, 0, reserved)
}

func TestPoolService_Allocate_InvalidAmount(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	pool := newPoolService(store)

	_, err := pool.Allocate("user-1", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = pool.Allocate("user-1", -3)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = pool.Allocate("user-1", 1001)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestPoolService_Allocate_ReplacesPreviousBatch(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	pool := newPoolService(store)
	seedProxies(t, store, 4)

	first, err := pool.Allocate("user-1", 3)
	require.NoError(t, err)

	// Regenerating releases the first batch, so 4 proxies suffice again
	second, err := pool.Allocate("user-1", 4)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	current, err := pool.CurrentBatch("user-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)
}

func TestPoolService_ConcurrentAllocationsDontOverlap(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	pool := newPoolService(store)
	seedProxies(t, store, 6)

	batchA, err := pool.Allocate("user-a", 4)
	require.NoError(t, err)

	// Only 2 unreserved records remain for B
	_, err = pool.Allocate("user-b", 3)
	assert.ErrorIs(t, err, storage.ErrNotEnoughProxies)

	batchB, err := pool.Allocate("user-b", 2)
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for _, id := range batchA.ProxyIDs() {
		seen[id] = struct{}{}
	}
	for _, id := range batchB.ProxyIDs() {
		_, overlap := seen[id]
		assert.False(t, overlap, "batches must not share records")
	}
}

func TestPoolService_Consume(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	pool := newPoolService(store)
	seedProxies(t, store, 5)

	batch, err := pool.Allocate("user-1", 3)
	require.NoError(t, err)

	consumed, err := pool.Consume("user-1")
	require.NoError(t, err)
	assert.Equal(t, batch.ID, consumed.ID)

	// Consumed records left the pool
	total, _, err := store.CountProxies()
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	// Exactly one usage log for the whole batch
	logs, err := store.ListUsageLogsByUser("user-1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 3, logs[0].Amount)
}

func TestPoolService_Consume_SecondDeliveryIsNotFound(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	pool := newPoolService(store)
	seedProxies(t, store, 3)

	_, err := pool.Allocate("user-1", 2)
	require.NoError(t, err)

	_, err = pool.Consume("user-1")
	require.NoError(t, err)

	// The batch is cleared, a repeat delivery finds nothing
	_, err = pool.Consume("user-1")
	assert.ErrorIs(t, err, ErrBatchNotFound)

	logs, err := store.ListUsageLogsByUser("user-1")
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestPoolService_Consume_LostRace(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	pool := newPoolService(store)
	seedProxies(t, store, 3)

	_, err := pool.Allocate("user-1", 2)
	require.NoError(t, err)

	// Delete-all between allocation and delivery empties the pool
	_, err = store.DeleteAllProxies()
	require.NoError(t, err)

	_, err = pool.Consume("user-1")
	assert.ErrorIs(t, err, storage.ErrBatchConflict)

	// Conflict drops the batch, the user has to regenerate
	_, err = pool.Consume("user-1")
	assert.ErrorIs(t, err, ErrBatchNotFound)

	// No usage was recorded for the failed delivery
	logs, err := store.ListUsageLogsByUser("user-1")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestPoolService_Consume_ExpiredBatch(t *testing.T) {
	store := memory.NewStore(time.Millisecond)
	pool := NewPoolService(store, time.Millisecond, 1000, nil, nil)
	seedProxies(t, store, 2)

	_, err := pool.Allocate("user-1", 2)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = pool.Consume("user-1")
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestPoolService_Release(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	pool := newPoolService(store)
	seedProxies(t, store, 3)

	_, err := pool.Allocate("user-1", 3)
	require.NoError(t, err)

	require.NoError(t, pool.Release("user-1"))

	_, reserved, err := store.CountProxies()
	require.NoError(t, err)
	assert.Equal(t, 0, reserved)

	// Releasing with no batch held is a no-op
	require.NoError(t, pool.Release("user-1"))
}

func TestPoolService_SweepStaleReservations(t *testing.T) {
	store := memory.NewStore(time.Millisecond)
	pool := NewPoolService(store, time.Millisecond, 1000, nil, nil)
	seedProxies(t, store, 3)

	_, err := pool.Allocate("user-1", 3)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	released, err := pool.SweepStaleReservations()
	require.NoError(t, err)
	assert.Equal(t, 3, released)

	// Records returned to the pool, another user can claim them
	_, err = pool.Allocate("user-2", 3)
	require.NoError(t, err)
}

func TestPoolService_CurrentBatch(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	pool := newPoolService(store)
	seedProxies(t, store, 3)

	allocated, err := pool.Allocate("user-1", 3)
	require.NoError(t, err)

	batch, err := pool.CurrentBatch("user-1")
	require.NoError(t, err)
	assert.Equal(t, allocated.ID, batch.ID)

	_, err = pool.CurrentBatch("user-2")
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestPoolService_CurrentBatch_AfterPoolWipe(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	pool := newPoolService(store)
	seedProxies(t, store, 3)

	_, err := pool.Allocate("user-1", 3)
	require.NoError(t, err)

	// Wiping the pool invalidates the held batch
	_, err = store.DeleteAllProxies()
	require.NoError(t, err)

	_, err = pool.CurrentBatch("user-1")
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestPoolService_CurrentBatch_StolenReservation(t *testing.T) {
	store := memory.NewStore(time.Millisecond)
	pool := NewPoolService(store, time.Hour, 1000, nil, nil)
	seedProxies(t, store, 2)

	batch, err := pool.Allocate("user-1", 2)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	// The store-level reservation lapsed and another user claimed the records
	_, err = store.ReserveProxies("user-2", 2, time.Now())
	require.NoError(t, err)

	_, err = pool.CurrentBatch("user-1")
	assert.ErrorIs(t, err, ErrBatchNotFound)

	// The thief's reservation survives the broken batch cleanup
	held, err := store.GetReservedProxies(batch.ProxyIDs(), "user-2")
	require.NoError(t, err)
	assert.Len(t, held, 2)
}
