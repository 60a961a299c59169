package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"proxypool/backend/internal/middleware"
	"proxypool/backend/internal/service"
)

// StatusHandler 状态面板的只读接口，管理员与经理可见
type StatusHandler struct {
	usage *service.UsageService
}

// NewStatusHandler 创建状态面板处理器
func NewStatusHandler(usage *service.UsageService) *StatusHandler {
	return &StatusHandler{usage: usage}
}

// Statistics 返回全局统计：账户数、池内库存、近期的使用量
func (h *StatusHandler) Statistics(c *gin.Context) {
	stats, err := h.usage.Statistics()
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, stats)
}

// UserUsage 返回按用户汇总的使用量表格
//
// 经理看不到管理员账户的行，管理员能看到全部。
func (h *StatusHandler) UserUsage(c *gin.Context) {
	actor := middleware.CurrentUser(c)
	if actor == nil {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	table, err := h.usage.UserUsageTable(actor.IsAdmin())
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, table)
}

// RecentLogs 返回最近的消费记录，携带用户名
func (h *StatusHandler) RecentLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs, err := h.usage.RecentLogs(limit)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, logs)
}
