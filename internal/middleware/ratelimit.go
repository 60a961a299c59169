package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"proxypool/backend/internal/cache"
	"proxypool/backend/internal/monitoring"
	"proxypool/backend/internal/storage/redis"
)

// LoginRateLimiter 登录限流。
//
// 按客户端 IP 在固定窗口内计数，优先使用 Redis 共享计数，
// Redis 不可用时退回到进程内缓存。另有一个全局令牌桶兜底，
// 挡住分布式来源的爆破。
type LoginRateLimiter struct {
	redisClient *redis.Client // 可为 nil
	local       *cache.LocalCache
	global      *rate.Limiter
	maxAttempts int64
	window      time.Duration
	metrics     *monitoring.Metrics
	log         *zap.Logger
}

// NewLoginRateLimiter 创建登录限流中间件
func NewLoginRateLimiter(redisClient *redis.Client, maxAttempts int, window time.Duration, metrics *monitoring.Metrics, log *zap.Logger) *LoginRateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoginRateLimiter{
		redisClient: redisClient,
		local:       cache.NewLocalCache(window),
		global:      rate.NewLimiter(rate.Limit(50), 100),
		maxAttempts: int64(maxAttempts),
		window:      window,
		metrics:     metrics,
		log:         log,
	}
}

// Limit 限流处理函数
func (l *LoginRateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.global.Allow() {
			l.block(c, "login_global")
			return
		}

		key := "login_attempts:" + c.ClientIP()
		count := l.count(c, key)
		if count > l.maxAttempts {
			l.log.Warn("login rate limited",
				zap.String("ip", c.ClientIP()),
				zap.Int64("attempts", count),
			)
			l.block(c, "login_ip")
			return
		}

		c.Next()
	}
}

func (l *LoginRateLimiter) count(c *gin.Context, key string) int64 {
	if l.redisClient != nil {
		count, err := l.redisClient.IncrWithExpire(c.Request.Context(), key, l.window)
		if err == nil {
			return count
		}
		l.log.Warn("redis counter unavailable, falling back to local cache", zap.Error(err))
	}
	return l.local.Incr(key, l.window)
}

func (l *LoginRateLimiter) block(c *gin.Context, limitType string) {
	if l.metrics != nil {
		l.metrics.RecordRateLimitBlock(limitType)
	}
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts, try again later"})
	c.Abort()
}
