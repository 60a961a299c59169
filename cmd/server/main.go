package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"proxypool/backend/internal/auth"
	jwtpkg "proxypool/backend/internal/auth/jwt"
	"proxypool/backend/internal/config"
	"proxypool/backend/internal/health"
	"proxypool/backend/internal/logger"
	"proxypool/backend/internal/middleware"
	"proxypool/backend/internal/monitoring"
	"proxypool/backend/internal/service"
	"proxypool/backend/internal/storage"
	"proxypool/backend/internal/storage/memory"
	"proxypool/backend/internal/storage/postgres"
	"proxypool/backend/internal/storage/redis"
	sqlstore "proxypool/backend/internal/storage/sql"
	httptransport "proxypool/backend/internal/transport/http"
	"proxypool/backend/internal/websocket"
)

// main 启动代理池门户服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting proxypool server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	store, err := initializeStorage(cfg, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize storage: %v", err))
	}
	defer store.Close()

	// 初始化 Redis（仅用于登录限流计数，可选）
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.New(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Warn("redis unavailable, login rate limiting falls back to local counters", zap.Error(err))
			redisClient = nil
		}
	}

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// 初始化健康检查
	healthChecker := health.NewHealthChecker(store, redisClient, log)

	// 初始化服务层
	poolService := service.NewPoolService(store, cfg.Pool.ReservationTTL, cfg.Pool.MaxBatch, metrics, log)
	uploadService := service.NewUploadService(store, store, cfg.Pool.UploadBatchSize, metrics, log)
	usageService := service.NewUsageService(store)
	adminService := service.NewAdminService(store, poolService, metrics, log)

	// 初始化认证服务
	authService := auth.NewService(store)
	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)

	// 创建 WebSocket Hub（上传进度推送给在线的管理端）
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, authService, log)

	// 登录限流
	loginLimiter := middleware.NewLoginRateLimiter(
		redisClient,
		cfg.RateLimit.LoginMaxAttempts,
		cfg.RateLimit.LoginWindow,
		metrics,
		log,
	)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:        cfg,
		AuthService:   authService,
		JWTManager:    jwtManager,
		PoolService:   poolService,
		UploadService: uploadService,
		UsageService:  usageService,
		AdminService:  adminService,
		WebSocketHub:  wsHub,
		LoginLimiter:  loginLimiter,
		Metrics:       metrics,
		Health:        healthChecker,
		Logger:        log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 定时清理过期预占 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(cfg.Pool.SweepInterval)
		defer ticker.Stop()

		log.Info("starting stale reservation sweep task", zap.Duration("interval", cfg.Pool.SweepInterval))

		for {
			select {
			case <-groupCtx.Done():
				log.Info("sweep task stopped")
				return nil
			case <-ticker.C:
				count, err := poolService.SweepStaleReservations()
				if err != nil {
					log.Error("failed to sweep stale reservations", zap.Error(err))
					continue
				}
				if count > 0 {
					log.Info("stale reservations released", zap.Int("count", count))
				}
				if total, reserved, err := poolService.PoolCounts(); err == nil {
					metrics.UpdatePool(total-reserved, reserved)
				}
				if users, err := store.ListUsers(); err == nil {
					active := 0
					for _, u := range users {
						if u.IsActive {
							active++
						}
					}
					metrics.UpdateUsers(len(users), active)
				}
			}
		}
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				log.Warn("redis close warning", zap.Error(err))
			}
		}

		log.Info("server stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// initializeStorage 根据配置选择存储实现。
//
// 未配置数据库时使用内存存储，适合开发环境；
// "mysql" / "postgres" 走 database/sql 实现，"pgx" 走原生 pgx 连接池。
func initializeStorage(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		log.Info("using memory storage (development mode)",
			zap.Duration("reservation_ttl", cfg.Pool.ReservationTTL),
		)
		return memory.NewStore(cfg.Pool.ReservationTTL), nil
	}

	switch cfg.Database.Type {
	case "mysql", "postgres":
		store, err := sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
			cfg.Pool.ReservationTTL,
		)
		if err != nil {
			return nil, err
		}
		log.Info("using sql storage", zap.String("driver", cfg.Database.Type))
		return store, nil
	case "pgx":
		client, err := postgres.NewClient(
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
			log,
		)
		if err != nil {
			return nil, err
		}
		store, err := postgres.NewStore(client, cfg.Pool.ReservationTTL)
		if err != nil {
			client.Close()
			return nil, err
		}
		log.Info("using pgx storage")
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
}
