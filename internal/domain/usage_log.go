package domain

import "time"

// UsageLog 记录一次成功的消费事件，追加写入，永不修改
//
// Amount 必须等于该次消费实际从池中移除的记录数。
type UsageLog struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `json:"userId" gorm:"type:varchar(36);index;not null"`
	Amount    int       `json:"amount" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
}

// UsageLogWithUser 携带用户名的使用记录，用于状态面板的最近记录列表
type UsageLogWithUser struct {
	UsageLog
	Username string `json:"username"`
}

// UsageSummary 按时间窗口聚合的使用量
type UsageSummary struct {
	TodayUsage   int `json:"todayUsage"`
	WeeklyUsage  int `json:"weeklyUsage"`
	MonthlyUsage int `json:"monthlyUsage"`
}

// UsageBoundaries 计算以 now 为基准的统计窗口起点
//
// 口径与前端一致：今天从本地零点起算，周窗口为零点前推 7 天，
// 月窗口为零点前推 30 天。
func UsageBoundaries(now time.Time) (dayStart, weekStart, monthStart time.Time) {
	dayStart = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekStart = dayStart.Add(-7 * 24 * time.Hour)
	monthStart = dayStart.Add(-30 * 24 * time.Hour)
	return dayStart, weekStart, monthStart
}

// SummarizeUsage 在内存中按窗口聚合一组使用记录
func SummarizeUsage(logs []UsageLog, now time.Time) UsageSummary {
	dayStart, weekStart, monthStart := UsageBoundaries(now)

	var summary UsageSummary
	for _, log := range logs {
		if !log.CreatedAt.Before(dayStart) {
			summary.TodayUsage += log.Amount
		}
		if !log.CreatedAt.Before(weekStart) {
			summary.WeeklyUsage += log.Amount
		}
		if !log.CreatedAt.Before(monthStart) {
			summary.MonthlyUsage += log.Amount
		}
	}
	return summary
}
