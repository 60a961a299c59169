package httptransport

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/middleware"
	"proxypool/backend/internal/service"
)

// 上传文件的大小上限，约 5 万行代理串
const maxUploadBytes = 8 * 1024 * 1024

// AdminHandler 处理账户管理与代理池管理
type AdminHandler struct {
	admin    *service.AdminService
	upload   *service.UploadService
	progress service.ProgressFunc // 上传进度推送，通常接 WebSocket Hub
	log      *zap.Logger
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(admin *service.AdminService, upload *service.UploadService, progress service.ProgressFunc, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{
		admin:    admin,
		upload:   upload,
		progress: progress,
		log:      log,
	}
}

type createUserRequest struct {
	Username  string `json:"username" binding:"required"`
	Role      string `json:"role"`
	AccessKey string `json:"accessKey"`
	IsActive  *bool  `json:"isActive"`
}

type updateUserRequest struct {
	Username  *string `json:"username"`
	Role      *string `json:"role"`
	IsActive  *bool   `json:"isActive"`
	RotateKey bool    `json:"rotateKey"`
}

type deleteAllRequest struct {
	Confirmation string `json:"confirmation" binding:"required"`
}

type uploadRequest struct {
	FileName string `json:"fileName" binding:"required"`
	Content  string `json:"content" binding:"required"`
}

// createdUserResponse 带明文访问密钥的账户视图，仅在创建和轮换时返回
type createdUserResponse struct {
	User      userResponse `json:"user"`
	AccessKey string       `json:"accessKey"`
}

// ListUsers 返回全部账户列表
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.admin.ListUsers()
	if err != nil {
		RespondError(c, err)
		return
	}

	views := make([]userResponse, 0, len(users))
	for i := range users {
		views = append(views, newUserResponse(&users[i]))
	}
	Success(c, views)
}

// GetUser 返回单个账户
func (h *AdminHandler) GetUser(c *gin.Context) {
	user, err := h.admin.GetUser(c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, newUserResponse(user))
}

// CreateUser 创建账户
//
// 响应中携带明文访问密钥，界面需要提示用户立即保存，
// 之后任何接口都无法再取回。
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, accessKey, err := h.admin.CreateUser(service.CreateUserInput{
		Username:  strings.TrimSpace(req.Username),
		Role:      domain.UserRole(req.Role),
		AccessKey: req.AccessKey,
		IsActive:  req.IsActive,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	Created(c, createdUserResponse{
		User:      newUserResponse(user),
		AccessKey: accessKey,
	})
}

// UpdateUser 更新账户，可选轮换访问密钥
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	actor := middleware.CurrentUser(c)
	if actor == nil {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	input := service.UpdateUserInput{
		Username:  req.Username,
		IsActive:  req.IsActive,
		RotateKey: req.RotateKey,
	}
	if req.Role != nil {
		role := domain.UserRole(*req.Role)
		input.Role = &role
	}

	user, accessKey, err := h.admin.UpdateUser(actor.ID, c.Param("id"), input)
	if err != nil {
		RespondError(c, err)
		return
	}

	if accessKey != "" {
		SuccessWithMsg(c, "密钥已轮换，请立即保存", createdUserResponse{
			User:      newUserResponse(user),
			AccessKey: accessKey,
		})
		return
	}
	Success(c, newUserResponse(user))
}

// DeleteUser 删除账户
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	actor := middleware.CurrentUser(c)
	if actor == nil {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	if err := h.admin.DeleteUser(actor.ID, c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	SuccessWithMsg(c, "删除成功", nil)
}

// UploadProxies 批量导入代理记录
//
// 请求体携带文件名和按行拼接的文件内容，解析后分批写入；
// 进度通过 WebSocket 推送给在线的管理端。
func (h *AdminHandler) UploadProxies(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if len(req.Content) > maxUploadBytes {
		BadRequest(c, "文件过大，请拆分后分批上传")
		return
	}

	count, err := h.upload.Upload(user.ID, req.FileName, req.Content, h.progress)
	if err != nil {
		RespondError(c, err)
		return
	}

	SuccessWithMsg(c, "上传成功", gin.H{"count": count})
}

// UploadHistory 返回最近的上传记录
func (h *AdminHandler) UploadHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	history, err := h.upload.History(limit)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, history)
}

// DeleteAllProxies 清空代理池
//
// 必须在请求体中携带确认短语 DELETE ALL，否则拒绝执行。
func (h *AdminHandler) DeleteAllProxies(c *gin.Context) {
	actor := middleware.CurrentUser(c)
	if actor == nil {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	var req deleteAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	deleted, err := h.admin.DeleteAllProxies(actor.ID, req.Confirmation)
	if err != nil {
		RespondError(c, err)
		return
	}

	SuccessWithMsg(c, "代理池已清空", gin.H{"deleted": deleted})
}
