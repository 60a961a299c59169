package storage

import (
	"errors"
	"time"

	"proxypool/backend/internal/domain"
)

var (
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists 用户名或访问密钥已存在
	ErrUserExists = errors.New("username or access key already exists")
	// ErrProxyExists 代理串已存在（批量上传命中唯一约束）
	ErrProxyExists = errors.New("some proxies already exist")
	// ErrNotEnoughProxies 可用代理数量不足，分配中止且不产生任何变更
	ErrNotEnoughProxies = errors.New("not enough proxies available")
	// ErrBatchConflict 批次内的记录已被他人占用或已不在池中
	ErrBatchConflict = errors.New("batch records taken by another user")
)

// UserRepository 定义账户数据存取操作。
type UserRepository interface {
	CreateUser(user *domain.User) error
	GetUserByID(id string) (*domain.User, error)
	GetUserByUsername(username string) (*domain.User, error)
	GetUserByAccessKeyHash(hash string) (*domain.User, error)
	UpdateUser(user *domain.User) error
	DeleteUser(id string) error
	ListUsers() ([]domain.User, error) // 按创建时间倒序
}

// ProxyRepository 定义代理池数据存取操作。
//
// ReserveProxies 是分配的核心：在单个原子操作内占用 n 条可用记录
// （is_used=false 且未被有效预占），不足 n 条时返回 ErrNotEnoughProxies
// 且不产生任何变更。ConsumeProxies 在单个原子操作内完成标记已用、
// 删除出池、写入一条使用日志；任何一条记录不再属于该用户时整体回滚
// 并返回 ErrBatchConflict。
type ProxyRepository interface {
	CreateProxies(proxies []domain.Proxy) error
	ReserveProxies(userID string, n int, now time.Time) ([]domain.Proxy, error)
	GetReservedProxies(ids []string, userID string) ([]domain.Proxy, error)
	ReleaseProxies(ids []string, userID string) error
	ReleaseStaleReservations(before time.Time) (int, error)
	ConsumeProxies(ids []string, userID string, now time.Time) (int, error)
	CountProxies() (total, reserved int, err error)
	DeleteAllProxies() (int, error)
}

// UsageLogRepository 定义使用日志的读取操作。
//
// 写入只发生在 ConsumeProxies 内部，保证日志与消费原子一致。
type UsageLogRepository interface {
	ListUsageLogsByUser(userID string) ([]domain.UsageLog, error) // 按时间倒序
	ListUsageLogsSince(since time.Time) ([]domain.UsageLog, error)
	SumUsage(userID string, since time.Time) (int, error)
	SumUsageAll(since time.Time) (int, error)
	ListRecentUsageLogs(limit int) ([]domain.UsageLogWithUser, error)
}

// UploadHistoryRepository 定义上传审计记录的存取操作。
type UploadHistoryRepository interface {
	CreateUploadHistory(history *domain.UploadHistory) error
	ListUploadHistory(limit int) ([]domain.UploadHistoryWithUser, error)
}

// Store 定义完整的存储接口。
type Store interface {
	UserRepository
	ProxyRepository
	UsageLogRepository
	UploadHistoryRepository

	// 工具方法
	Close() error
	Health() error
}
