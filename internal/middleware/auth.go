package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"proxypool/backend/internal/auth"
	"proxypool/backend/internal/auth/jwt"
	"proxypool/backend/internal/domain"
)

// 上下文键
const (
	ContextUserID = "userID"
	ContextUser   = "user"
)

// Auth 认证中间件。
//
// 令牌只提供账户 ID 线索，每个请求都重新从存储解析账户，
// 账户被删除或禁用后已签发的令牌立即失效。
type Auth struct {
	jwtManager  *jwt.Manager
	authService *auth.Service
	log         *zap.Logger
}

// NewAuth 创建认证中间件
func NewAuth(jwtManager *jwt.Manager, authService *auth.Service, log *zap.Logger) *Auth {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auth{
		jwtManager:  jwtManager,
		authService: authService,
		log:         log,
	}
}

// RequireAuth 要求有效令牌且账户仍然可用
func (a *Auth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := a.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		claims, err := a.jwtManager.ValidateToken(token)
		if err != nil {
			a.log.Warn("invalid token",
				zap.String("error", err.Error()),
				zap.String("ip", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		user, err := a.authService.ResolveUser(claims.UserID)
		if err != nil {
			a.log.Warn("token account no longer valid",
				zap.String("user_id", claims.UserID),
				zap.String("ip", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account unavailable"})
			c.Abort()
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextUser, user)
		c.Next()
	}
}

// RequireStaff 要求 admin 或 manager 角色
func (a *Auth) RequireStaff() gin.HandlerFunc {
	return a.requireRole(func(u *domain.User) bool { return u.IsStaff() }, "staff access required")
}

// RequireAdmin 要求 admin 角色
func (a *Auth) RequireAdmin() gin.HandlerFunc {
	return a.requireRole(func(u *domain.User) bool { return u.IsAdmin() }, "admin access required")
}

func (a *Auth) requireRole(allowed func(*domain.User) bool, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		if !allowed(user) {
			c.JSON(http.StatusForbidden, gin.H{"error": message})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser 从上下文取出已解析的账户
func CurrentUser(c *gin.Context) *domain.User {
	val, exists := c.Get(ContextUser)
	if !exists {
		return nil
	}
	user, ok := val.(*domain.User)
	if !ok {
		return nil
	}
	return user
}

// extractToken 从请求中提取令牌
func (a *Auth) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	// websocket 握手无法携带自定义头
	if token := c.Query("token"); token != "" {
		return token
	}

	token, err := c.Cookie("access_token")
	if err == nil && token != "" {
		return token
	}
	return ""
}
