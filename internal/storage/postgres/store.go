package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/storage"
)

const queryTimeout = 5 * time.Second

// Store 基于 pgx 连接池的 PostgreSQL 存储实现。
//
// 与通用 SQL 存储的区别：预占查询使用 FOR UPDATE SKIP LOCKED，
// 并发分配时互相跳过已锁行而不是排队等待。
type Store struct {
	client         *Client
	reservationTTL time.Duration
}

// NewStore 创建 PostgreSQL 存储实例并确保表结构存在
func NewStore(client *Client, reservationTTL time.Duration) (*Store, error) {
	s := &Store{client: client, reservationTTL: reservationTTL}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// migrate 创建数据表（幂等）
func (s *Store) migrate() error {
	ctx, cancel := s.ctx()
	defer cancel()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(36) PRIMARY KEY,
			username VARCHAR(100) NOT NULL UNIQUE,
			access_key_hash VARCHAR(64) NOT NULL UNIQUE,
			role VARCHAR(20) NOT NULL DEFAULT 'user',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS proxies (
			id VARCHAR(36) PRIMARY KEY,
			proxy_string VARCHAR(255) NOT NULL UNIQUE,
			is_used BOOLEAN NOT NULL DEFAULT FALSE,
			used_by VARCHAR(36),
			used_at TIMESTAMPTZ,
			reserved_by VARCHAR(36),
			reserved_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS usage_logs (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL,
			amount INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_logs_user_id ON usage_logs (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_logs_created_at ON usage_logs (created_at)`,
		`CREATE TABLE IF NOT EXISTS upload_histories (
			id VARCHAR(36) PRIMARY KEY,
			uploaded_by VARCHAR(36) NOT NULL,
			file_name VARCHAR(255) NOT NULL,
			proxy_count INTEGER NOT NULL,
			position VARCHAR(20) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.client.Pool().Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), queryTimeout)
}

// isUniqueViolation 判断是否命中唯一约束
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ========== User Repository ==========

const userColumns = `id, username, access_key_hash, role, is_active, created_at, updated_at`

// CreateUser 写入新账户
func (s *Store) CreateUser(user *domain.User) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.client.Pool().Exec(ctx, `
		INSERT INTO users (id, username, access_key_hash, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.Username, user.AccessKeyHash, user.Role, user.IsActive, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrUserExists
		}
		return err
	}
	return nil
}

func (s *Store) getUser(where string, arg any) (*domain.User, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var user domain.User
	err := s.client.Pool().QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg,
	).Scan(&user.ID, &user.Username, &user.AccessKeyHash, &user.Role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByID 根据 ID 获取账户
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	return s.getUser("id = $1", id)
}

// GetUserByUsername 根据用户名获取账户
func (s *Store) GetUserByUsername(username string) (*domain.User, error) {
	return s.getUser("username = $1", username)
}

// GetUserByAccessKeyHash 根据访问密钥摘要获取账户
func (s *Store) GetUserByAccessKeyHash(hash string) (*domain.User, error) {
	return s.getUser("access_key_hash = $1", hash)
}

// UpdateUser 更新账户信息
func (s *Store) UpdateUser(user *domain.User) error {
	ctx, cancel := s.ctx()
	defer cancel()

	user.UpdatedAt = time.Now()
	tag, err := s.client.Pool().Exec(ctx, `
		UPDATE users
		SET username = $1, access_key_hash = $2, role = $3, is_active = $4, updated_at = $5
		WHERE id = $6
	`, user.Username, user.AccessKeyHash, user.Role, user.IsActive, user.UpdatedAt, user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrUserExists
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// DeleteUser 删除账户
func (s *Store) DeleteUser(id string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	tag, err := s.client.Pool().Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// ListUsers 按创建时间倒序返回全部账户
func (s *Store) ListUsers() ([]domain.User, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.client.Pool().Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.Username, &user.AccessKeyHash, &user.Role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// ========== Proxy Repository ==========

const proxyColumns = `id, proxy_string, is_used, used_by, used_at, reserved_by, reserved_at, created_at`

// CreateProxies 在单个事务内批量写入代理记录
func (s *Store) CreateProxies(proxies []domain.Proxy) error {
	if len(proxies) == 0 {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	tx, err := s.client.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := range proxies {
		p := &proxies[i]
		if _, err := tx.Exec(ctx, `
			INSERT INTO proxies (id, proxy_string, is_used, created_at)
			VALUES ($1, $2, FALSE, $3)
		`, p.ID, p.ProxyString, p.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return storage.ErrProxyExists
			}
			return err
		}
	}
	return tx.Commit(ctx)
}

// ReserveProxies 原子预占 n 条可用代理。
// SKIP LOCKED 让并发分配直接跳过已被其他事务锁定的行。
func (s *Store) ReserveProxies(userID string, n int, now time.Time) ([]domain.Proxy, error) {
	if n <= 0 {
		return []domain.Proxy{}, nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	tx, err := s.client.Pool().Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cutoff := now.Add(-s.reservationTTL)
	rows, err := tx.Query(ctx, `
		SELECT id, proxy_string, created_at
		FROM proxies
		WHERE is_used = FALSE AND (reserved_by IS NULL OR reserved_at < $1)
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, cutoff, n)
	if err != nil {
		return nil, err
	}

	proxies := make([]domain.Proxy, 0, n)
	for rows.Next() {
		var p domain.Proxy
		if err := rows.Scan(&p.ID, &p.ProxyString, &p.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		proxies = append(proxies, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(proxies) < n {
		return nil, storage.ErrNotEnoughProxies
	}

	ids := make([]string, len(proxies))
	for i := range proxies {
		ids[i] = proxies[i].ID
	}
	if _, err := tx.Exec(ctx, `
		UPDATE proxies SET reserved_by = $1, reserved_at = $2 WHERE id = ANY($3)
	`, userID, now, ids); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	reservedAt := now
	for i := range proxies {
		proxies[i].ReservedBy = &userID
		proxies[i].ReservedAt = &reservedAt
	}
	return proxies, nil
}

// GetReservedProxies 返回仍由该用户持有的指定记录
func (s *Store) GetReservedProxies(ids []string, userID string) ([]domain.Proxy, error) {
	if len(ids) == 0 {
		return []domain.Proxy{}, nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.client.Pool().Query(ctx, `
		SELECT `+proxyColumns+`
		FROM proxies
		WHERE id = ANY($1) AND is_used = FALSE AND reserved_by = $2
	`, ids, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProxies(rows)
}

// ReleaseProxies 释放该用户持有的预占
func (s *Store) ReleaseProxies(ids []string, userID string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.client.Pool().Exec(ctx, `
		UPDATE proxies SET reserved_by = NULL, reserved_at = NULL
		WHERE id = ANY($1) AND reserved_by = $2
	`, ids, userID)
	return err
}

// ReleaseStaleReservations 释放在 before 之前建立的全部预占
func (s *Store) ReleaseStaleReservations(before time.Time) (int, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	tag, err := s.client.Pool().Exec(ctx, `
		UPDATE proxies SET reserved_by = NULL, reserved_at = NULL
		WHERE is_used = FALSE AND reserved_by IS NOT NULL AND reserved_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ConsumeProxies 在单个事务内完成消费：校验持有、标记已用、
// 删除出池、写入一条使用日志。任何一条记录不再属于该用户则整体回滚。
func (s *Store) ConsumeProxies(ids []string, userID string, now time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	tx, err := s.client.Pool().Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	// 聚合函数不能和 FOR UPDATE 同用，锁行后在客户端计数
	rows, err := tx.Query(ctx, `
		SELECT id FROM proxies
		WHERE id = ANY($1) AND is_used = FALSE AND reserved_by = $2
		FOR UPDATE
	`, ids, userID)
	if err != nil {
		return 0, err
	}
	held := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		held++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if held != len(ids) {
		return 0, storage.ErrBatchConflict
	}

	if _, err := tx.Exec(ctx, `
		UPDATE proxies SET is_used = TRUE, used_by = $1, used_at = $2 WHERE id = ANY($3)
	`, userID, now, ids); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM proxies WHERE id = ANY($1)`, ids); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO usage_logs (id, user_id, amount, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.New().String(), userID, len(ids), now); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// CountProxies 统计池内记录总数与有效预占数
func (s *Store) CountProxies() (total, reserved int, err error) {
	ctx, cancel := s.ctx()
	defer cancel()

	cutoff := time.Now().Add(-s.reservationTTL)
	err = s.client.Pool().QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE reserved_by IS NOT NULL AND reserved_at >= $1)
		FROM proxies
		WHERE is_used = FALSE
	`, cutoff).Scan(&total, &reserved)
	return total, reserved, err
}

// DeleteAllProxies 清空代理池，返回删除条数
func (s *Store) DeleteAllProxies() (int, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	tag, err := s.client.Pool().Exec(ctx, `DELETE FROM proxies`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanProxies(rows pgx.Rows) ([]domain.Proxy, error) {
	proxies := make([]domain.Proxy, 0)
	for rows.Next() {
		var p domain.Proxy
		if err := rows.Scan(&p.ID, &p.ProxyString, &p.IsUsed, &p.UsedBy, &p.UsedAt, &p.ReservedBy, &p.ReservedAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		proxies = append(proxies, p)
	}
	return proxies, rows.Err()
}

// ========== UsageLog Repository ==========

// ListUsageLogsByUser 按时间倒序返回用户的全部使用记录
func (s *Store) ListUsageLogsByUser(userID string) ([]domain.UsageLog, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.client.Pool().Query(ctx, `
		SELECT id, user_id, amount, created_at
		FROM usage_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsageLogs(rows)
}

// ListUsageLogsSince 返回 since 之后（含）的全部使用记录
func (s *Store) ListUsageLogsSince(since time.Time) ([]domain.UsageLog, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.client.Pool().Query(ctx, `
		SELECT id, user_id, amount, created_at
		FROM usage_logs
		WHERE created_at >= $1
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsageLogs(rows)
}

// SumUsage 统计单个用户自 since 起的使用总量
func (s *Store) SumUsage(userID string, since time.Time) (int, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var sum int
	err := s.client.Pool().QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM usage_logs
		WHERE user_id = $1 AND created_at >= $2
	`, userID, since).Scan(&sum)
	return sum, err
}

// SumUsageAll 统计所有用户自 since 起的使用总量
func (s *Store) SumUsageAll(since time.Time) (int, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var sum int
	err := s.client.Pool().QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM usage_logs
		WHERE created_at >= $1
	`, since).Scan(&sum)
	return sum, err
}

// ListRecentUsageLogs 按时间倒序返回最近的使用记录（携带用户名）
func (s *Store) ListRecentUsageLogs(limit int) ([]domain.UsageLogWithUser, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.client.Pool().Query(ctx, `
		SELECT l.id, l.user_id, l.amount, l.created_at, COALESCE(u.username, '')
		FROM usage_logs l
		LEFT JOIN users u ON u.id = l.user_id
		ORDER BY l.created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.UsageLogWithUser, 0)
	for rows.Next() {
		var log domain.UsageLogWithUser
		if err := rows.Scan(&log.ID, &log.UserID, &log.Amount, &log.CreatedAt, &log.Username); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func scanUsageLogs(rows pgx.Rows) ([]domain.UsageLog, error) {
	logs := make([]domain.UsageLog, 0)
	for rows.Next() {
		var log domain.UsageLog
		if err := rows.Scan(&log.ID, &log.UserID, &log.Amount, &log.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// ========== UploadHistory Repository ==========

// CreateUploadHistory 追加一条上传审计记录
func (s *Store) CreateUploadHistory(history *domain.UploadHistory) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.client.Pool().Exec(ctx, `
		INSERT INTO upload_histories (id, uploaded_by, file_name, proxy_count, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, history.ID, history.UploadedBy, history.FileName, history.ProxyCount, history.Position, history.CreatedAt)
	return err
}

// ListUploadHistory 按时间倒序返回最近的上传记录（携带上传者用户名）
func (s *Store) ListUploadHistory(limit int) ([]domain.UploadHistoryWithUser, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.client.Pool().Query(ctx, `
		SELECT h.id, h.uploaded_by, h.file_name, h.proxy_count, h.position, h.created_at,
		       COALESCE(u.username, '')
		FROM upload_histories h
		LEFT JOIN users u ON u.id = h.uploaded_by
		ORDER BY h.created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.UploadHistoryWithUser, 0)
	for rows.Next() {
		var h domain.UploadHistoryWithUser
		if err := rows.Scan(&h.ID, &h.UploadedBy, &h.FileName, &h.ProxyCount, &h.Position, &h.CreatedAt, &h.Username); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// ========== 工具方法 ==========

// Close 关闭底层连接池
func (s *Store) Close() error {
	s.client.Close()
	return nil
}

// Health 检查数据库连通性
func (s *Store) Health() error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.Ping(ctx)
}

var _ storage.Store = (*Store)(nil)
