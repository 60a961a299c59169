package httptransport

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"proxypool/backend/internal/auth"
	jwtpkg "proxypool/backend/internal/auth/jwt"
	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/middleware"
)

// AuthHandler 处理认证相关的 HTTP 请求
type AuthHandler struct {
	authService *auth.Service   // 认证业务服务
	jwtManager  *jwtpkg.Manager // JWT 令牌管理器
	log         *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *auth.Service, jwtManager *jwtpkg.Manager, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{
		authService: authService,
		jwtManager:  jwtManager,
		log:         log,
	}
}

type loginRequest struct {
	AccessKey string `json:"accessKey" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type authResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

func newUserResponse(user *domain.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Username:  user.Username,
		Role:      string(user.Role),
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
	}
}

// Login 使用访问密钥登录
// @Summary 访问密钥登录
// @Description 校验访问密钥，返回用户信息和会话令牌
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body loginRequest true "登录信息"
// @Success 200 {object} authResponse "登录成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "访问密钥无效或账户停用"
// @Router /v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, err := h.authService.LoginWithAccessKey(req.AccessKey)
	if err != nil {
		h.log.Info("login rejected",
			zap.String("client_ip", c.ClientIP()),
			zap.Error(err),
		)
		RespondError(c, err)
		return
	}

	tokens, err := h.jwtManager.GenerateTokenPair(user.ID, user.Username, string(user.Role))
	if err != nil {
		h.log.Error("failed to issue token pair", zap.String("user_id", user.ID), zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	SuccessWithMsg(c, "登录成功", authResponse{
		User:         newUserResponse(user),
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
	})
}

// Refresh 使用刷新令牌换取新的访问令牌
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	accessToken, err := h.jwtManager.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		Unauthorized(c, MsgTokenInvalid)
		return
	}

	Success(c, gin.H{"accessToken": accessToken})
}

// Me 返回当前登录用户信息
//
// 中间件每次都会从存储重新加载用户，令牌里的角色只是提示，
// 这里返回的是数据库中的最新状态。
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		Unauthorized(c, MsgAuthRequired)
		return
	}
	Success(c, newUserResponse(user))
}
