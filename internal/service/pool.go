package service

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/monitoring"
	"proxypool/backend/internal/storage"
)

var (
	// ErrInvalidAmount 申请数量不合法
	ErrInvalidAmount = errors.New("invalid batch amount")
	// ErrBatchNotFound 当前没有待交付的批次
	ErrBatchNotFound = errors.New("no pending batch")
)

// PoolService 封装代理池的分配与消费。
//
// 分配分两步：先在存储层原子预占记录，再把批次放入内存暂存；
// 交付（下载/复制）时在单个事务内消费整个批次。每个用户同一时刻
// 只持有一个批次，重新生成会释放上一批的预占。
type PoolService struct {
	repo           storage.ProxyRepository
	reservationTTL time.Duration
	maxBatch       int
	metrics        *monitoring.Metrics
	log            *zap.Logger

	mu      sync.Mutex
	batches map[string]*domain.Batch // userID -> 当前批次
}

// NewPoolService 创建代理池服务
func NewPoolService(repo storage.ProxyRepository, reservationTTL time.Duration, maxBatch int, metrics *monitoring.Metrics, log *zap.Logger) *PoolService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PoolService{
		repo:           repo,
		reservationTTL: reservationTTL,
		maxBatch:       maxBatch,
		metrics:        metrics,
		log:            log,
		batches:        make(map[string]*domain.Batch),
	}
}

// Allocate 为用户预占 amount 条代理并生成新批次。
// 用户已持有批次时先释放旧批次的预占。
func (s *PoolService) Allocate(userID string, amount int) (*domain.Batch, error) {
	if amount <= 0 || amount > s.maxBatch {
		return nil, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.batches[userID]; ok {
		if err := s.repo.ReleaseProxies(prev.ProxyIDs(), userID); err != nil {
			s.log.Warn("failed to release previous batch",
				zap.String("user_id", userID),
				zap.String("batch_id", prev.ID),
				zap.Error(err),
			)
		}
		delete(s.batches, userID)
	}

	now := time.Now()
	proxies, err := s.repo.ReserveProxies(userID, amount, now)
	if err != nil {
		return nil, err
	}

	batch := &domain.Batch{
		ID:        uuid.New().String(),
		UserID:    userID,
		Proxies:   proxies,
		CreatedAt: now,
	}
	s.batches[userID] = batch

	if s.metrics != nil {
		s.metrics.ProxiesAllocated.Add(float64(amount))
	}
	s.log.Info("batch allocated",
		zap.String("user_id", userID),
		zap.String("batch_id", batch.ID),
		zap.Int("amount", amount),
	)
	return batch, nil
}

// CurrentBatch 返回用户当前持有的批次。
// 批次里的记录可能已被清空池或过期回收夺走，这里对照存储校验
// 预占是否仍然完整，不完整时释放残余并要求重新生成。
func (s *PoolService) CurrentBatch(userID string) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[userID]
	if !ok || s.expired(batch, time.Now()) {
		delete(s.batches, userID)
		return nil, ErrBatchNotFound
	}

	held, err := s.repo.GetReservedProxies(batch.ProxyIDs(), userID)
	if err != nil {
		return nil, err
	}
	if len(held) != batch.Size() {
		delete(s.batches, userID)
		if err := s.repo.ReleaseProxies(batch.ProxyIDs(), userID); err != nil {
			s.log.Warn("failed to release broken batch",
				zap.String("user_id", userID),
				zap.String("batch_id", batch.ID),
				zap.Error(err),
			)
		}
		return nil, ErrBatchNotFound
	}
	return batch, nil
}

// Consume 交付并消费用户当前批次。
// 存储层在事务内校验批次仍完整归属该用户，任何一条被他人
// 占走或已出池时返回 storage.ErrBatchConflict，本地批次同时清除，
// 用户需要重新生成。成功后返回已交付的批次内容。
func (s *PoolService) Consume(userID string) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[userID]
	if !ok || s.expired(batch, time.Now()) {
		delete(s.batches, userID)
		return nil, ErrBatchNotFound
	}

	consumed, err := s.repo.ConsumeProxies(batch.ProxyIDs(), userID, time.Now())
	if err != nil {
		if errors.Is(err, storage.ErrBatchConflict) {
			// 批次已不完整，丢弃本地批次让用户重新生成
			delete(s.batches, userID)
		}
		return nil, err
	}
	delete(s.batches, userID)

	if s.metrics != nil {
		s.metrics.ProxiesConsumed.Add(float64(consumed))
	}
	s.log.Info("batch consumed",
		zap.String("user_id", userID),
		zap.String("batch_id", batch.ID),
		zap.Int("amount", consumed),
	)
	return batch, nil
}

// Release 释放用户当前批次的预占（如果有）
func (s *PoolService) Release(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[userID]
	if !ok {
		return nil
	}
	delete(s.batches, userID)
	return s.repo.ReleaseProxies(batch.ProxyIDs(), userID)
}

// ReleaseAll 清空全部本地批次（清空代理池时调用）
func (s *PoolService) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = make(map[string]*domain.Batch)
}

// SweepStaleReservations 释放过期预占并淘汰过期的本地批次。
// 由后台定时任务周期调用。
func (s *PoolService) SweepStaleReservations() (int, error) {
	now := time.Now()

	s.mu.Lock()
	for userID, batch := range s.batches {
		if s.expired(batch, now) {
			delete(s.batches, userID)
		}
	}
	s.mu.Unlock()

	released, err := s.repo.ReleaseStaleReservations(now.Add(-s.reservationTTL))
	if err != nil {
		return 0, err
	}
	if released > 0 {
		s.log.Info("released stale reservations", zap.Int("count", released))
	}
	return released, nil
}

// PoolCounts 返回池内未用总数与有效预占数
func (s *PoolService) PoolCounts() (total, reserved int, err error) {
	return s.repo.CountProxies()
}

func (s *PoolService) expired(batch *domain.Batch, now time.Time) bool {
	return now.Sub(batch.CreatedAt) > s.reservationTTL
}
