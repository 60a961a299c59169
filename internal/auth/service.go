package auth

import (
	"errors"

	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/storage"
)

var (
	// ErrInvalidAccessKey 访问密钥无效
	ErrInvalidAccessKey = errors.New("invalid access key")
	// ErrUserInactive 账户已被禁用
	ErrUserInactive = errors.New("user is inactive")
)

// UserRepository 认证所需的账户存储接口
type UserRepository interface {
	GetUserByID(id string) (*domain.User, error)
	GetUserByAccessKeyHash(hash string) (*domain.User, error)
}

// Service 认证服务。
// 访问密钥是唯一的登录凭证，按 SHA-256 摘要反查账户。
type Service struct {
	userRepo UserRepository
}

// NewService 创建认证服务
func NewService(userRepo UserRepository) *Service {
	return &Service{
		userRepo: userRepo,
	}
}

// LoginWithAccessKey 使用访问密钥登录
func (s *Service) LoginWithAccessKey(accessKey string) (*domain.User, error) {
	if accessKey == "" {
		return nil, ErrInvalidAccessKey
	}

	user, err := s.userRepo.GetUserByAccessKeyHash(HashAccessKey(accessKey))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrInvalidAccessKey
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}

	return user, nil
}

// ResolveUser 按 ID 重新解析账户。
// 每个携带令牌的请求都经过这里，账户被删除或禁用后令牌立即失效。
func (s *Service) ResolveUser(userID string) (*domain.User, error) {
	user, err := s.userRepo.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrInvalidAccessKey
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}

	return user, nil
}
