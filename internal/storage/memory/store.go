package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/storage"
)

// Store 使用内存保存账户与代理池数据，主要用于开发验证与测试。
type Store struct {
	mu              sync.RWMutex
	users           map[string]*domain.User // userID -> user
	byUsername      map[string]string       // username -> userID
	byAccessKeyHash map[string]string       // accessKeyHash -> userID

	proxies       map[string]*domain.Proxy // proxyID -> proxy
	byProxyString map[string]string        // proxyString -> proxyID

	usageLogs     []domain.UsageLog
	uploadHistory []domain.UploadHistory

	reservationTTL time.Duration
}

// NewStore 创建一个内存存储实例。
func NewStore(reservationTTL time.Duration) *Store {
	return &Store{
		users:           make(map[string]*domain.User),
		byUsername:      make(map[string]string),
		byAccessKeyHash: make(map[string]string),
		proxies:         make(map[string]*domain.Proxy),
		byProxyString:   make(map[string]string),
		usageLogs:       make([]domain.UsageLog, 0),
		uploadHistory:   make([]domain.UploadHistory, 0),
		reservationTTL:  reservationTTL,
	}
}

// ========== UserRepository ==========

// CreateUser 创建账户。
func (s *Store) CreateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[user.Username]; exists {
		return storage.ErrUserExists
	}
	if _, exists := s.byAccessKeyHash[user.AccessKeyHash]; exists {
		return storage.ErrUserExists
	}

	clone := *user
	s.users[user.ID] = &clone
	s.byUsername[user.Username] = user.ID
	s.byAccessKeyHash[user.AccessKeyHash] = user.ID
	return nil
}

// GetUserByID 根据 ID 获取账户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

// GetUserByUsername 根据用户名获取账户。
func (s *Store) GetUserByUsername(username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	clone := *s.users[id]
	return &clone, nil
}

// GetUserByAccessKeyHash 根据访问密钥摘要获取账户。
func (s *Store) GetUserByAccessKeyHash(hash string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAccessKeyHash[hash]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	clone := *s.users[id]
	return &clone, nil
}

// UpdateUser 更新账户信息并维护二级索引。
func (s *Store) UpdateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[user.ID]
	if !ok {
		return storage.ErrUserNotFound
	}

	if user.Username != current.Username {
		if _, exists := s.byUsername[user.Username]; exists {
			return storage.ErrUserExists
		}
	}
	if user.AccessKeyHash != current.AccessKeyHash {
		if _, exists := s.byAccessKeyHash[user.AccessKeyHash]; exists {
			return storage.ErrUserExists
		}
	}

	delete(s.byUsername, current.Username)
	delete(s.byAccessKeyHash, current.AccessKeyHash)

	clone := *user
	s.users[user.ID] = &clone
	s.byUsername[user.Username] = user.ID
	s.byAccessKeyHash[user.AccessKeyHash] = user.ID
	return nil
}

// DeleteUser 删除账户。
func (s *Store) DeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}

	delete(s.byUsername, user.Username)
	delete(s.byAccessKeyHash, user.AccessKeyHash)
	delete(s.users, id)
	return nil
}

// ListUsers 按创建时间倒序列出全部账户。
func (s *Store) ListUsers() ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, *user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

// ========== ProxyRepository ==========

// CreateProxies 批量写入代理记录，整批原子：任一代理串重复则全部不入库。
func (s *Store) CreateProxies(proxies []domain.Proxy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(proxies))
	for _, p := range proxies {
		if _, exists := s.byProxyString[p.ProxyString]; exists {
			return storage.ErrProxyExists
		}
		if _, dup := seen[p.ProxyString]; dup {
			return storage.ErrProxyExists
		}
		seen[p.ProxyString] = struct{}{}
	}

	for _, p := range proxies {
		clone := p
		s.proxies[p.ID] = &clone
		s.byProxyString[p.ProxyString] = p.ID
	}
	return nil
}

// ReserveProxies 原子地为用户预占 n 条可用记录。
//
// 可用数量不足时不做任何变更，返回 ErrNotEnoughProxies。
func (s *Store) ReserveProxies(userID string, n int, now time.Time) ([]domain.Proxy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	available := make([]*domain.Proxy, 0, n)
	for _, p := range s.proxies {
		if p.Available(now, s.reservationTTL) {
			available = append(available, p)
			if len(available) == n {
				break
			}
		}
	}

	if len(available) < n {
		return nil, storage.ErrNotEnoughProxies
	}

	reserved := make([]domain.Proxy, 0, n)
	for _, p := range available {
		owner := userID
		at := now
		p.ReservedBy = &owner
		p.ReservedAt = &at
		reserved = append(reserved, *p)
	}
	return reserved, nil
}

// GetReservedProxies 返回 ids 中仍被该用户预占且未消费的记录。
func (s *Store) GetReservedProxies(ids []string, userID string) ([]domain.Proxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Proxy, 0, len(ids))
	for _, id := range ids {
		p, ok := s.proxies[id]
		if !ok {
			continue
		}
		if p.ReservedByUser(userID) {
			result = append(result, *p)
		}
	}
	return result, nil
}

// ReleaseProxies 释放用户对指定记录的预占。
func (s *Store) ReleaseProxies(ids []string, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		p, ok := s.proxies[id]
		if !ok {
			continue
		}
		if p.ReservedByUser(userID) {
			p.ReservedBy = nil
			p.ReservedAt = nil
		}
	}
	return nil
}

// ReleaseStaleReservations 释放 before 之前建立的预占，返回释放数量。
func (s *Store) ReleaseStaleReservations(before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, p := range s.proxies {
		if p.IsUsed || p.ReservedAt == nil {
			continue
		}
		if p.ReservedAt.Before(before) {
			p.ReservedBy = nil
			p.ReservedAt = nil
			count++
		}
	}
	return count, nil
}

// ConsumeProxies 原子地消费一个批次：标记已用、删除出池并写入一条使用日志。
//
// 任一记录不再被该用户持有则整体失败，返回 ErrBatchConflict。
func (s *Store) ConsumeProxies(ids []string, userID string, now time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	claimed := make([]*domain.Proxy, 0, len(ids))
	for _, id := range ids {
		p, ok := s.proxies[id]
		if !ok || !p.ReservedByUser(userID) {
			return 0, storage.ErrBatchConflict
		}
		claimed = append(claimed, p)
	}

	owner := userID
	at := now
	for _, p := range claimed {
		p.IsUsed = true
		p.UsedBy = &owner
		p.UsedAt = &at
		delete(s.byProxyString, p.ProxyString)
		delete(s.proxies, p.ID)
	}

	s.usageLogs = append(s.usageLogs, domain.UsageLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Amount:    len(claimed),
		CreatedAt: now,
	})
	return len(claimed), nil
}

// CountProxies 返回池内总数与当前被预占的数量。
func (s *Store) CountProxies() (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.proxies)
	reserved := 0
	now := time.Now()
	for _, p := range s.proxies {
		if !p.IsUsed && p.ReservedBy != nil && !p.ReservationExpired(now, s.reservationTTL) {
			reserved++
		}
	}
	return total, reserved, nil
}

// DeleteAllProxies 清空代理池，返回删除数量。
func (s *Store) DeleteAllProxies() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.proxies)
	s.proxies = make(map[string]*domain.Proxy)
	s.byProxyString = make(map[string]string)
	return count, nil
}

// ========== UsageLogRepository ==========

// ListUsageLogsByUser 按时间倒序返回用户的全部使用记录。
func (s *Store) ListUsageLogsByUser(userID string) ([]domain.UsageLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.UsageLog, 0)
	for _, log := range s.usageLogs {
		if log.UserID == userID {
			logs = append(logs, log)
		}
	}
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].CreatedAt.After(logs[j].CreatedAt)
	})
	return logs, nil
}

// ListUsageLogsSince 返回 since 之后（含）的全部使用记录。
func (s *Store) ListUsageLogsSince(since time.Time) ([]domain.UsageLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.UsageLog, 0)
	for _, log := range s.usageLogs {
		if !log.CreatedAt.Before(since) {
			logs = append(logs, log)
		}
	}
	return logs, nil
}

// SumUsage 统计单个用户自 since 起的使用总量。
func (s *Store) SumUsage(userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := 0
	for _, log := range s.usageLogs {
		if log.UserID == userID && !log.CreatedAt.Before(since) {
			sum += log.Amount
		}
	}
	return sum, nil
}

// SumUsageAll 统计所有用户自 since 起的使用总量。
func (s *Store) SumUsageAll(since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := 0
	for _, log := range s.usageLogs {
		if !log.CreatedAt.Before(since) {
			sum += log.Amount
		}
	}
	return sum, nil
}

// ListRecentUsageLogs 按时间倒序返回最近的使用记录（携带用户名）。
func (s *Store) ListRecentUsageLogs(limit int) ([]domain.UsageLogWithUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.UsageLog, len(s.usageLogs))
	copy(logs, s.usageLogs)
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].CreatedAt.After(logs[j].CreatedAt)
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}

	result := make([]domain.UsageLogWithUser, 0, len(logs))
	for _, log := range logs {
		entry := domain.UsageLogWithUser{UsageLog: log}
		if user, ok := s.users[log.UserID]; ok {
			entry.Username = user.Username
		}
		result = append(result, entry)
	}
	return result, nil
}

// ========== UploadHistoryRepository ==========

// CreateUploadHistory 追加一条上传审计记录。
func (s *Store) CreateUploadHistory(history *domain.UploadHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.uploadHistory = append(s.uploadHistory, *history)
	return nil
}

// ListUploadHistory 按时间倒序返回最近的上传记录（携带上传者用户名）。
func (s *Store) ListUploadHistory(limit int) ([]domain.UploadHistoryWithUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]domain.UploadHistory, len(s.uploadHistory))
	copy(history, s.uploadHistory)
	sort.Slice(history, func(i, j int) bool {
		return history[i].CreatedAt.After(history[j].CreatedAt)
	})
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}

	result := make([]domain.UploadHistoryWithUser, 0, len(history))
	for _, h := range history {
		entry := domain.UploadHistoryWithUser{UploadHistory: h}
		if user, ok := s.users[h.UploadedBy]; ok {
			entry.Username = user.Username
		}
		result = append(result, entry)
	}
	return result, nil
}

// ========== 工具方法 ==========

// Close 关闭存储（内存实现为空操作）。
func (s *Store) Close() error {
	return nil
}

// Health 检查存储健康状态（内存实现永远健康）。
func (s *Store) Health() error {
	return nil
}
