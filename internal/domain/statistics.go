package domain

// SystemStatistics 状态面板的全局统计
type SystemStatistics struct {
	TotalUsers      int `json:"totalUsers"`
	ActiveUsers     int `json:"activeUsers"`
	TotalProxies    int `json:"totalProxies"`
	ReservedProxies int `json:"reservedProxies"`
	TodayUsage      int `json:"todayUsage"`
	WeeklyUsage     int `json:"weeklyUsage"`
}

// UserUsage 单个用户的使用量汇总，用于状态面板的用户表格
type UserUsage struct {
	User User `json:"user"`
	UsageSummary
}
