package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"proxypool/backend/internal/middleware"
	"proxypool/backend/internal/service"
)

// ProfileHandler 处理当前用户的使用量查询
type ProfileHandler struct {
	usage *service.UsageService
}

// NewProfileHandler 创建个人信息处理器
func NewProfileHandler(usage *service.UsageService) *ProfileHandler {
	return &ProfileHandler{usage: usage}
}

// UsageSummary 返回当前用户今天 / 近 7 天 / 近 30 天的使用量
func (h *ProfileHandler) UsageSummary(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	summary, err := h.usage.Summary(user.ID)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, summary)
}

// UsageLogs 返回当前用户的消费记录，按时间倒序
func (h *ProfileHandler) UsageLogs(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	logs, err := h.usage.Logs(user.ID)
	if err != nil {
		RespondError(c, err)
		return
	}

	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil && limit > 0 && limit < len(logs) {
		logs = logs[:limit]
	}
	Success(c, logs)
}
