package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/storage/memory"
)

func consumeBatch(t *testing.T, store *memory.Store, pool *PoolService, userID string, amount int) {
	t.Helper()
	_, err := pool.Allocate(userID, amount)
	require.NoError(t, err)
	_, err = pool.Consume(userID)
	require.NoError(t, err)
}

func TestUsageService_Summary(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	pool := newPoolService(store)
	usage := NewUsageService(store)
	seedProxies(t, store, 10)

	consumeBatch(t, store, pool, "user-1", 3)
	consumeBatch(t, store, pool, "user-1", 2)
	consumeBatch(t, store, pool, "user-2", 4)

	summary, err := usage.Summary("user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TodayUsage)
	assert.Equal(t, 5, summary.WeeklyUsage)
	assert.Equal(t, 5, summary.MonthlyUsage)

	// A user with no consumption gets zeros, not an error
	summary, err = usage.Summary("user-none")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TodayUsage)
}

func TestUsageService_Statistics(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	pool := newPoolService(store)
	usage := NewUsageService(store)
	admin := NewAdminService(store, pool, nil, nil)
	seedProxies(t, store, 10)

	userA, _, err := admin.CreateUser(CreateUserInput{Username: "alice"})
	require.NoError(t, err)
	inactive := false
	_, _, err = admin.CreateUser(CreateUserInput{Username: "bob", IsActive: &inactive})
	require.NoError(t, err)

	consumeBatch(t, store, pool, userA.ID, 3)
	_, err = pool.Allocate(userA.ID, 2)
	require.NoError(t, err)

	stats, err := usage.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 1, stats.ActiveUsers)
	assert.Equal(t, 7, stats.TotalProxies)
	assert.Equal(t, 2, stats.ReservedProxies)
	assert.Equal(t, 3, stats.TodayUsage)
	assert.Equal(t, 3, stats.WeeklyUsage)
}

func TestUsageService_UserUsageTable(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	pool := newPoolService(store)
	usage := NewUsageService(store)
	admin := NewAdminService(store, pool, nil, nil)
	seedProxies(t, store, 10)

	adminUser, _, err := admin.CreateUser(CreateUserInput{Username: "root", Role: domain.RoleAdmin})
	require.NoError(t, err)
	normal, _, err := admin.CreateUser(CreateUserInput{Username: "norm"})
	require.NoError(t, err)

	consumeBatch(t, store, pool, adminUser.ID, 2)
	consumeBatch(t, store, pool, normal.ID, 5)

	// Admin viewers see everyone
	table, err := usage.UserUsageTable(true)
	require.NoError(t, err)
	assert.Len(t, table, 2)

	// Manager viewers do not see admin accounts
	table, err = usage.UserUsageTable(false)
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, "norm", table[0].User.Username)
	assert.Equal(t, 5, table[0].TodayUsage)
}

func TestUsageService_RecentLogs(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	pool := newPoolService(store)
	usage := NewUsageService(store)
	admin := NewAdminService(store, pool, nil, nil)
	seedProxies(t, store, 10)

	user, _, err := admin.CreateUser(CreateUserInput{Username: "alice"})
	require.NoError(t, err)
	consumeBatch(t, store, pool, user.ID, 2)
	consumeBatch(t, store, pool, user.ID, 3)

	logs, err := usage.RecentLogs(50)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "alice", logs[0].Username)

	logs, err = usage.RecentLogs(1)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}
