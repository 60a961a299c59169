package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"proxypool/backend/internal/auth"
	jwtpkg "proxypool/backend/internal/auth/jwt"
	"proxypool/backend/internal/config"
	"proxypool/backend/internal/health"
	"proxypool/backend/internal/middleware"
	"proxypool/backend/internal/monitoring"
	"proxypool/backend/internal/service"
	"proxypool/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config        *config.Config
	AuthService   *auth.Service
	JWTManager    *jwtpkg.Manager
	PoolService   *service.PoolService
	UploadService *service.UploadService
	UsageService  *service.UsageService
	AdminService  *service.AdminService
	WebSocketHub  *websocket.Hub               // 上传进度推送，可为空
	LoginLimiter  *middleware.LoginRateLimiter // 登录限流，可为空
	Metrics       *monitoring.Metrics          // Prometheus 指标，可为空
	Health        *health.HealthChecker        // 存活/就绪探针，可为空
	Logger        *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	// 使用自定义中间件替代默认中间件
	if deps.Metrics != nil {
		mm := middleware.NewMonitoringMiddleware(deps.Metrics, log)
		router.Use(mm.PanicRecovery())
		router.Use(mm.HTTPMetrics())
	} else {
		router.Use(gin.Recovery())
	}
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())

	// 上传内容以 JSON 方式提交，限制与文件上限保持一致
	router.Use(middleware.BodySizeLimit(maxUploadBytes + 1024*1024))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 创建处理器
	var progress service.ProgressFunc
	if deps.WebSocketHub != nil {
		progress = deps.WebSocketHub.NotifyUploadProgress
	}
	authHandler := NewAuthHandler(deps.AuthService, deps.JWTManager, log)
	poolHandler := NewPoolHandler(deps.PoolService, log)
	profileHandler := NewProfileHandler(deps.UsageService)
	adminHandler := NewAdminHandler(deps.AdminService, deps.UploadService, progress, log)
	statusHandler := NewStatusHandler(deps.UsageService)

	// 创建中间件
	authGuard := middleware.NewAuth(deps.JWTManager, deps.AuthService, log)

	// 监控端点
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// 健康检查。heptiolabs 的处理器按 /live、/ready 注册路由，
	// 挂到 /health 下需要剥掉前缀。
	if deps.Health != nil {
		probe := http.StripPrefix("/health", deps.Health.Handler())
		router.GET("/health/live", gin.WrapH(probe))
		router.GET("/health/ready", gin.WrapH(probe))
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, deps.Health.Snapshot())
		})
	} else {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	// V1 API
	v1 := router.Group("/api/v1")
	{
		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth")
		{
			if deps.LoginLimiter != nil {
				authRoutes.POST("/login", deps.LoginLimiter.Limit(), authHandler.Login)
			} else {
				authRoutes.POST("/login", authHandler.Login)
			}
			authRoutes.POST("/refresh", authHandler.Refresh)
			authRoutes.GET("/me", authGuard.RequireAuth(), authHandler.Me)
		}

		// ========== Pool Routes ==========
		poolRoutes := v1.Group("/pool")
		poolRoutes.Use(authGuard.RequireAuth())
		{
			poolRoutes.POST("/generate", poolHandler.Generate)          // 申请新批次
			poolRoutes.GET("/batch", poolHandler.Current)               // 查看当前批次
			poolRoutes.POST("/copy", poolHandler.Copy)                  // 复制交付（消费）
			poolRoutes.GET("/download/txt", poolHandler.DownloadText)   // txt 交付（消费）
			poolRoutes.GET("/download/xlsx", poolHandler.DownloadSheet) // xlsx 交付（消费）
		}

		// ========== Profile Routes ==========
		profileRoutes := v1.Group("/profile")
		profileRoutes.Use(authGuard.RequireAuth())
		{
			profileRoutes.GET("/usage", profileHandler.UsageSummary)
			profileRoutes.GET("/usage/logs", profileHandler.UsageLogs)
		}

		// ========== WebSocket Routes ==========
		if deps.WebSocketHub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}

		// ========== Status Routes（管理员 + 经理） ==========
		statusRoutes := v1.Group("/status")
		statusRoutes.Use(authGuard.RequireAuth(), authGuard.RequireStaff())
		{
			statusRoutes.GET("/statistics", statusHandler.Statistics)
			statusRoutes.GET("/users", statusHandler.UserUsage)
			statusRoutes.GET("/logs", statusHandler.RecentLogs)
		}

		// ========== Admin Routes ==========
		adminRoutes := v1.Group("/admin")
		adminRoutes.Use(authGuard.RequireAuth())
		{
			// 账户管理（仅管理员）
			adminRoutes.GET("/users", authGuard.RequireAdmin(), adminHandler.ListUsers)
			adminRoutes.POST("/users", authGuard.RequireAdmin(), adminHandler.CreateUser)
			adminRoutes.GET("/users/:id", authGuard.RequireAdmin(), adminHandler.GetUser)
			adminRoutes.PATCH("/users/:id", authGuard.RequireAdmin(), adminHandler.UpdateUser)
			adminRoutes.DELETE("/users/:id", authGuard.RequireAdmin(), adminHandler.DeleteUser)

			// 代理池管理（上传对经理开放，清空仅管理员）
			adminRoutes.POST("/proxies/upload", authGuard.RequireStaff(), adminHandler.UploadProxies)
			adminRoutes.GET("/proxies/uploads", authGuard.RequireStaff(), adminHandler.UploadHistory)
			adminRoutes.POST("/proxies/delete-all", authGuard.RequireAdmin(), adminHandler.DeleteAllProxies)
		}
	}

	return router
}
