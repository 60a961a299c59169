package sql

import (
	"time"

	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/storage"
)

// ========== UsageLog Repository ==========

// ListUsageLogsByUser 按时间倒序返回用户的全部使用记录
func (s *Store) ListUsageLogsByUser(userID string) ([]domain.UsageLog, error) {
	query := s.rebind(`
		SELECT id, user_id, amount, created_at
		FROM usage_logs
		WHERE user_id = ?
		ORDER BY created_at DESC
	`)
	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

// ListUsageLogsSince 返回 since 之后（含）的全部使用记录
func (s *Store) ListUsageLogsSince(since time.Time) ([]domain.UsageLog, error) {
	query := s.rebind(`
		SELECT id, user_id, amount, created_at
		FROM usage_logs
		WHERE created_at >= ?
	`)
	rows, err := s.db.Query(query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

// SumUsage 统计单个用户自 since 起的使用总量
func (s *Store) SumUsage(userID string, since time.Time) (int, error) {
	query := s.rebind(`
		SELECT COALESCE(SUM(amount), 0) FROM usage_logs
		WHERE user_id = ? AND created_at >= ?
	`)
	var sum int
	err := s.db.QueryRow(query, userID, since).Scan(&sum)
	return sum, err
}

// SumUsageAll 统计所有用户自 since 起的使用总量
func (s *Store) SumUsageAll(since time.Time) (int, error) {
	query := s.rebind(`
		SELECT COALESCE(SUM(amount), 0) FROM usage_logs
		WHERE created_at >= ?
	`)
	var sum int
	err := s.db.QueryRow(query, since).Scan(&sum)
	return sum, err
}

// ListRecentUsageLogs 按时间倒序返回最近的使用记录（携带用户名）
func (s *Store) ListRecentUsageLogs(limit int) ([]domain.UsageLogWithUser, error) {
	query := s.rebind(`
		SELECT l.id, l.user_id, l.amount, l.created_at, COALESCE(u.username, '')
		FROM usage_logs l
		LEFT JOIN users u ON u.id = l.user_id
		ORDER BY l.created_at DESC
		LIMIT ?
	`)
	rows, err := s.db.Query(query, limit)
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

// ========== UploadHistory Repository ==========

// CreateUploadHistory 追加一条上传审计记录
func (s *Store) CreateUploadHistory(history *domain.UploadHistory) error {
	query := s.rebind(`
		INSERT INTO upload_histories (id, uploaded_by, file_name, proxy_count, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.Exec(query,
		history.ID,
		history.UploadedBy,
		history.FileName,
		history.ProxyCount,
		history.Position,
		history.CreatedAt,
	)
	return err
}

// ListUploadHistory 按时间倒序返回最近的上传记录（携带上传者用户名）
func (s *Store) ListUploadHistory(limit int) ([]domain.UploadHistoryWithUser, error) {
	query := s.rebind(`
		SELECT h.id, h.uploaded_by, h.file_name, h.proxy_count, h.position, h.created_at,
		       COALESCE(u.username, '')
		FROM upload_histories h
		LEFT JOIN users u ON u.id = h.uploaded_by
		ORDER BY h.created_at DESC
		LIMIT ?
	`)
	rows, err := s.db.Query(query, limit)
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

// 保证接口实现完整
var _ storage.Store = (*Store)(nil)
