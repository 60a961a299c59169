package sql

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/storage"
)

// ========== Proxy Repository ==========

const proxyColumns = `id, proxy_string, is_used, used_by, used_at, reserved_by, reserved_at, created_at`

// CreateProxies 在单个事务内批量写入代理记录
//
// 任一代理串命中唯一约束则整批回滚，返回 ErrProxyExists。
func (s *Store) CreateProxies(proxies []domain.Proxy) error {
	if len(proxies) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := s.rebind(`
		INSERT INTO proxies (id, proxy_string, is_used, created_at)
		VALUES (?, ?, ?, ?)
	`)
	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range proxies {
		if _, err := stmt.Exec(p.ID, p.ProxyString, p.IsUsed, p.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return storage.ErrProxyExists
			}
			return err
		}
	}
	return tx.Commit()
}

// ReserveProxies 在单个事务内为用户预占 n 条可用记录
//
// SELECT ... FOR UPDATE 锁定候选行，杜绝两个并发请求占到同一条记录；
// 可用数量不足时回滚，不产生任何变更。
func (s *Store) ReserveProxies(userID string, n int, now time.Time) ([]domain.Proxy, error) {
	staleBefore := now.Add(-s.reservationTTL)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := s.rebind(`
		SELECT id, proxy_string, created_at
		FROM proxies
		WHERE is_used = false AND (reserved_by IS NULL OR reserved_at < ?)
		LIMIT ? FOR UPDATE
	`)
	rows, err := tx.Query(query, staleBefore, n)
	if err != nil {
		return nil, err
	}

	reserved := make([]domain.Proxy, 0, n)
	for rows.Next() {
		var p domain.Proxy
		if err := rows.Scan(&p.ID, &p.ProxyString, &p.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		reserved = append(reserved, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(reserved) < n {
		return nil, storage.ErrNotEnoughProxies
	}

	ids := make([]string, 0, n)
	for i := range reserved {
		owner := userID
		at := now
		reserved[i].ReservedBy = &owner
		reserved[i].ReservedAt = &at
		ids = append(ids, reserved[i].ID)
	}

	update := s.rebind(`
		UPDATE proxies SET reserved_by = ?, reserved_at = ?
		WHERE id IN (` + placeholders(len(ids)) + `)
	`)
	args := append([]interface{}{userID, now}, stringArgs(ids)...)
	if _, err := tx.Exec(update, args...); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return reserved, nil
}

// GetReservedProxies 返回 ids 中仍被该用户预占且未消费的记录
func (s *Store) GetReservedProxies(ids []string, userID string) ([]domain.Proxy, error) {
	if len(ids) == 0 {
		return []domain.Proxy{}, nil
	}

	query := s.rebind(`
		SELECT ` + proxyColumns + `
		FROM proxies
		WHERE id IN (` + placeholders(len(ids)) + `) AND is_used = false AND reserved_by = ?
	`)
	args := append(stringArgs(ids), userID)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProxies(rows)
}

// ReleaseProxies 释放用户对指定记录的预占
func (s *Store) ReleaseProxies(ids []string, userID string) error {
	if len(ids) == 0 {
		return nil
	}

	query := s.rebind(`
		UPDATE proxies SET reserved_by = NULL, reserved_at = NULL
		WHERE id IN (` + placeholders(len(ids)) + `) AND reserved_by = ? AND is_used = false
	`)
	args := append(stringArgs(ids), userID)
	_, err := s.db.Exec(query, args...)
	return err
}

// ReleaseStaleReservations 释放 before 之前建立的预占，返回释放数量
func (s *Store) ReleaseStaleReservations(before time.Time) (int, error) {
	query := s.rebind(`
		UPDATE proxies SET reserved_by = NULL, reserved_at = NULL
		WHERE is_used = false AND reserved_at IS NOT NULL AND reserved_at < ?
	`)
	result, err := s.db.Exec(query, before)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

// ConsumeProxies 在单个事务内消费一个批次
//
// 标记已用、删除出池、写入一条使用日志三步要么全部完成要么全部回滚；
// 任一记录不再被该用户持有时返回 ErrBatchConflict。
func (s *Store) ConsumeProxies(ids []string, userID string, now time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// postgres 不允许聚合函数和 FOR UPDATE 同用，锁行后在客户端计数
	check := s.rebind(`
		SELECT id FROM proxies
		WHERE id IN (` + placeholders(len(ids)) + `) AND is_used = false AND reserved_by = ?
		FOR UPDATE
	`)
	args := append(stringArgs(ids), userID)

	rows, err := tx.Query(check, args...)
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

	mark := s.rebind(`
		UPDATE proxies SET is_used = true, used_by = ?, used_at = ?
		WHERE id IN (` + placeholders(len(ids)) + `)
	`)
	markArgs := append([]interface{}{userID, now}, stringArgs(ids)...)
	if _, err := tx.Exec(mark, markArgs...); err != nil {
		return 0, err
	}

	del := s.rebind(`DELETE FROM proxies WHERE id IN (` + placeholders(len(ids)) + `)`)
	if _, err := tx.Exec(del, stringArgs(ids)...); err != nil {
		return 0, err
	}

	logInsert := s.rebind(`
		INSERT INTO usage_logs (id, user_id, amount, created_at)
		VALUES (?, ?, ?, ?)
	`)
	if _, err := tx.Exec(logInsert, uuid.New().String(), userID, len(ids), now); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// CountProxies 返回池内总数与当前被有效预占的数量
func (s *Store) CountProxies() (int, int, error) {
	staleBefore := time.Now().Add(-s.reservationTTL)

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM proxies`).Scan(&total); err != nil {
		return 0, 0, err
	}

	query := s.rebind(`
		SELECT COUNT(*) FROM proxies
		WHERE is_used = false AND reserved_by IS NOT NULL AND reserved_at >= ?
	`)
	var reserved int
	if err := s.db.QueryRow(query, staleBefore).Scan(&reserved); err != nil {
		return 0, 0, err
	}
	return total, reserved, nil
}

// DeleteAllProxies 清空代理池，返回删除数量
func (s *Store) DeleteAllProxies() (int, error) {
	result, err := s.db.Exec(`DELETE FROM proxies`)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

// scanProxies 从结果集读出完整代理记录
func scanProxies(rows *sql.Rows) ([]domain.Proxy, error) {
	proxies := make([]domain.Proxy, 0)
	for rows.Next() {
		var p domain.Proxy
		var usedBy, reservedBy sql.NullString
		var usedAt, reservedAt sql.NullTime

		if err := rows.Scan(
			&p.ID,
			&p.ProxyString,
			&p.IsUsed,
			&usedBy,
			&usedAt,
			&reservedBy,
			&reservedAt,
			&p.CreatedAt,
		); err != nil {
			return nil, err
		}

		if usedBy.Valid {
			p.UsedBy = &usedBy.String
		}
		if usedAt.Valid {
			p.UsedAt = &usedAt.Time
		}
		if reservedBy.Valid {
			p.ReservedBy = &reservedBy.String
		}
		if reservedAt.Valid {
			p.ReservedAt = &reservedAt.Time
		}
		proxies = append(proxies, p)
	}
	return proxies, rows.Err()
}
