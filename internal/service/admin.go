package service

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"proxypool/backend/internal/auth"
	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/monitoring"
	"proxypool/backend/internal/storage"
)

const deleteAllConfirmation = "DELETE ALL"

var (
	// ErrInvalidRole 角色不合法
	ErrInvalidRole = errors.New("invalid role")
	// ErrSelfModification 不允许删除或禁用自己的账户
	ErrSelfModification = errors.New("cannot delete or deactivate own account")
	// ErrConfirmationMismatch 清空确认短语不匹配
	ErrConfirmationMismatch = errors.New("confirmation phrase mismatch")
)

// AdminService 账户管理与代理池管理。
type AdminService struct {
	store   storage.Store
	pool    *PoolService
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewAdminService 创建管理服务
func NewAdminService(store storage.Store, pool *PoolService, metrics *monitoring.Metrics, log *zap.Logger) *AdminService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminService{
		store:   store,
		pool:    pool,
		metrics: metrics,
		log:     log,
	}
}

// CreateUserInput 创建账户的输入
type CreateUserInput struct {
	Username  string
	Role      domain.UserRole
	AccessKey string // 为空时由服务端生成
	IsActive  *bool
}

// CreateUser 创建账户并返回明文访问密钥。
// 明文只在这里返回一次，之后任何接口都取不到。
func (s *AdminService) CreateUser(input CreateUserInput) (*domain.User, string, error) {
	if err := domain.ValidateUsername(input.Username); err != nil {
		return nil, "", err
	}
	if input.Role == "" {
		input.Role = domain.RoleUser
	}
	if !domain.ValidRole(input.Role) {
		return nil, "", ErrInvalidRole
	}

	accessKey := input.AccessKey
	if accessKey == "" {
		generated, err := auth.GenerateAccessKey()
		if err != nil {
			return nil, "", err
		}
		accessKey = generated
	}

	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}

	now := time.Now()
	user := &domain.User{
		ID:            uuid.New().String(),
		Username:      input.Username,
		AccessKeyHash: auth.HashAccessKey(accessKey),
		Role:          input.Role,
		IsActive:      isActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateUser(user); err != nil {
		return nil, "", err
	}

	s.log.Info("user created",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)),
		zap.String("access_key", auth.MaskAccessKey(accessKey)),
	)
	return user, accessKey, nil
}

// UpdateUserInput 更新账户的输入，nil 字段保持不变
type UpdateUserInput struct {
	Username  *string
	Role      *domain.UserRole
	IsActive  *bool
	RotateKey bool
}

// UpdateUser 更新账户。轮换密钥时返回新的明文密钥。
// 操作者不能禁用自己的账户。
func (s *AdminService) UpdateUser(actorID, userID string, input UpdateUserInput) (*domain.User, string, error) {
	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return nil, "", err
	}

	if input.Username != nil {
		if err := domain.ValidateUsername(*input.Username); err != nil {
			return nil, "", err
		}
		user.Username = *input.Username
	}
	if input.Role != nil {
		if !domain.ValidRole(*input.Role) {
			return nil, "", ErrInvalidRole
		}
		user.Role = *input.Role
	}
	if input.IsActive != nil {
		if actorID == userID && !*input.IsActive {
			return nil, "", ErrSelfModification
		}
		user.IsActive = *input.IsActive
	}

	newKey := ""
	if input.RotateKey {
		generated, err := auth.GenerateAccessKey()
		if err != nil {
			return nil, "", err
		}
		newKey = generated
		user.AccessKeyHash = auth.HashAccessKey(newKey)
	}

	if err := s.store.UpdateUser(user); err != nil {
		return nil, "", err
	}

	s.log.Info("user updated",
		zap.String("user_id", user.ID),
		zap.Bool("key_rotated", input.RotateKey),
	)
	return user, newKey, nil
}

// DeleteUser 删除账户。操作者不能删除自己。
func (s *AdminService) DeleteUser(actorID, userID string) error {
	if actorID == userID {
		return ErrSelfModification
	}
	if err := s.store.DeleteUser(userID); err != nil {
		return err
	}
	s.log.Info("user deleted", zap.String("user_id", userID))
	return nil
}

// GetUser 按 ID 获取账户
func (s *AdminService) GetUser(userID string) (*domain.User, error) {
	return s.store.GetUserByID(userID)
}

// ListUsers 按创建时间倒序返回全部账户
func (s *AdminService) ListUsers() ([]domain.User, error) {
	return s.store.ListUsers()
}

// DeleteAllProxies 清空代理池。
// 必须提供确认短语 "DELETE ALL"（不区分大小写），返回删除条数。
func (s *AdminService) DeleteAllProxies(actorID, confirmation string) (int, error) {
	if !strings.EqualFold(strings.TrimSpace(confirmation), deleteAllConfirmation) {
		return 0, ErrConfirmationMismatch
	}

	removed, err := s.store.DeleteAllProxies()
	if err != nil {
		return 0, err
	}
	// 池已空，所有未交付批次随之失效
	if s.pool != nil {
		s.pool.ReleaseAll()
	}
	if s.metrics != nil {
		s.metrics.ProxiesDeleted.Add(float64(removed))
	}

	s.log.Warn("proxy pool wiped",
		zap.String("actor_id", actorID),
		zap.Int("removed", removed),
	)
	return removed, nil
}
