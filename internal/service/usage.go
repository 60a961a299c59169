package service

import (
	"time"

	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/storage"
)

// UsageService 使用量统计。
// 所有窗口统计按请求实时计算，不做缓存。
type UsageService struct {
	store storage.Store
}

// NewUsageService 创建统计服务
func NewUsageService(store storage.Store) *UsageService {
	return &UsageService{store: store}
}

// Summary 返回单个用户的今日/本周/本月使用量
func (s *UsageService) Summary(userID string) (*domain.UsageSummary, error) {
	logs, err := s.store.ListUsageLogsByUser(userID)
	if err != nil {
		return nil, err
	}
	summary := domain.SummarizeUsage(logs, time.Now())
	return &summary, nil
}

// Logs 返回用户的完整使用记录（按时间倒序）
func (s *UsageService) Logs(userID string) ([]domain.UsageLog, error) {
	return s.store.ListUsageLogsByUser(userID)
}

// Statistics 返回系统整体状态
func (s *UsageService) Statistics() (*domain.SystemStatistics, error) {
	users, err := s.store.ListUsers()
	if err != nil {
		return nil, err
	}
	active := 0
	for i := range users {
		if users[i].IsActive {
			active++
		}
	}

	total, reserved, err := s.store.CountProxies()
	if err != nil {
		return nil, err
	}

	dayStart, weekStart, _ := domain.UsageBoundaries(time.Now())
	todayUsage, err := s.store.SumUsageAll(dayStart)
	if err != nil {
		return nil, err
	}
	weeklyUsage, err := s.store.SumUsageAll(weekStart)
	if err != nil {
		return nil, err
	}

	return &domain.SystemStatistics{
		TotalUsers:      len(users),
		ActiveUsers:     active,
		TotalProxies:    total,
		ReservedProxies: reserved,
		TodayUsage:      todayUsage,
		WeeklyUsage:     weeklyUsage,
	}, nil
}

// UserUsageTable 返回每个用户的窗口使用量。
// manager 查看时隐藏 admin 账户（includeAdmins=false）。
func (s *UsageService) UserUsageTable(includeAdmins bool) ([]domain.UserUsage, error) {
	users, err := s.store.ListUsers()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	_, _, monthStart := domain.UsageBoundaries(now)
	logs, err := s.store.ListUsageLogsSince(monthStart)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string][]domain.UsageLog)
	for _, log := range logs {
		byUser[log.UserID] = append(byUser[log.UserID], log)
	}

	table := make([]domain.UserUsage, 0, len(users))
	for i := range users {
		user := users[i]
		if !includeAdmins && user.IsAdmin() {
			continue
		}
		table = append(table, domain.UserUsage{
			User:         user,
			UsageSummary: domain.SummarizeUsage(byUser[user.ID], now),
		})
	}
	return table, nil
}

// RecentLogs 返回最近的使用记录（携带用户名）
func (s *UsageService) RecentLogs(limit int) ([]domain.UsageLogWithUser, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	return s.store.ListRecentUsageLogs(limit)
}
