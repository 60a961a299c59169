package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"proxypool/backend/internal/storage"
	"proxypool/backend/internal/storage/redis"
)

const goroutineThreshold = 200

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Store
	redis  *redis.Client // 可为 nil
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(store storage.Store, redisClient *redis.Client, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		redis:  redisClient,
		logger: logger,
	}
	hc.addChecks()
	return hc
}

func (hc *HealthChecker) addChecks() {
	// 存活探针：goroutine 数量异常说明进程不健康
	hc.health.AddLivenessCheck("goroutine-count",
		healthcheck.GoroutineCountCheck(goroutineThreshold))

	// 就绪探针：存储必须可达
	hc.health.AddReadinessCheck("store", func() error {
		return hc.store.Health()
	})

	if hc.redis != nil {
		hc.health.AddReadinessCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return hc.redis.Ping(ctx)
		})
	}
}

// Handler 返回健康检查处理器（/live 与 /ready）
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// Snapshot 返回一次健康检查结果摘要
func (hc *HealthChecker) Snapshot() map[string]string {
	results := make(map[string]string)

	if err := hc.store.Health(); err != nil {
		results["store"] = "ERROR: " + err.Error()
	} else {
		results["store"] = "OK"
	}

	if hc.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := hc.redis.Ping(ctx); err != nil {
			results["redis"] = "ERROR: " + err.Error()
		} else {
			results["redis"] = "OK"
		}
		cancel()
	} else {
		results["redis"] = "NOT_CONFIGURED"
	}

	results["goroutines"] = "OK"
	if runtime.NumGoroutine() > goroutineThreshold {
		results["goroutines"] = "TOO_MANY"
	}
	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}
