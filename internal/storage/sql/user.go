package sql

import (
	"database/sql"
	"errors"
	"time"

	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/storage"
)

// ========== User Repository ==========

const userColumns = `id, username, access_key_hash, role, is_active, created_at, updated_at`

// CreateUser 创建账户
func (s *Store) CreateUser(user *domain.User) error {
	query := s.rebind(`
		INSERT INTO users (id, username, access_key_hash, role, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.Exec(query,
		user.ID,
		user.Username,
		user.AccessKeyHash,
		user.Role,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrUserExists
		}
		return err
	}
	return nil
}

// GetUserByID 根据 ID 获取账户
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	return s.getUser(`WHERE id = ?`, id)
}

// GetUserByUsername 根据用户名获取账户
func (s *Store) GetUserByUsername(username string) (*domain.User, error) {
	return s.getUser(`WHERE username = ?`, username)
}

// GetUserByAccessKeyHash 根据访问密钥摘要获取账户
func (s *Store) GetUserByAccessKeyHash(hash string) (*domain.User, error) {
	return s.getUser(`WHERE access_key_hash = ?`, hash)
}

func (s *Store) getUser(where string, arg interface{}) (*domain.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users ` + where)

	var user domain.User
	err := s.db.QueryRow(query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.AccessKeyHash,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateUser 更新账户信息
func (s *Store) UpdateUser(user *domain.User) error {
	user.UpdatedAt = time.Now()

	query := s.rebind(`
		UPDATE users
		SET username = ?, access_key_hash = ?, role = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := s.db.Exec(query,
		user.Username,
		user.AccessKeyHash,
		user.Role,
		user.IsActive,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrUserExists
		}
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// DeleteUser 删除账户
func (s *Store) DeleteUser(id string) error {
	query := s.rebind(`DELETE FROM users WHERE id = ?`)
	result, err := s.db.Exec(query, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// ListUsers 按创建时间倒序列出全部账户
func (s *Store) ListUsers() ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(
			&user.ID,
			&user.Username,
			&user.AccessKeyHash,
			&user.Role,
			&user.IsActive,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
