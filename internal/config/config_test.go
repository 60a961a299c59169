package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	// 保存原始环境变量
	originalEnvs := make(map[string]string)
	envKeys := []string{
		"PROXYPOOL_JWT_SECRET",
		"PROXYPOOL_SERVER_HOST",
		"PROXYPOOL_SERVER_PORT",
		"PROXYPOOL_POOL_RESERVATION_TTL",
		"PROXYPOOL_POOL_MAX_BATCH",
		"PROXYPOOL_POOL_UPLOAD_BATCH_SIZE",
		"PROXYPOOL_CORS_ALLOWED_ORIGINS",
		"PROXYPOOL_LOG_LEVEL",
		"PROXYPOOL_LOG_DEVELOPMENT",
		"PROXYPOOL_DATABASE_TYPE",
		"PROXYPOOL_RATELIMIT_LOGIN_MAX_ATTEMPTS",
	}

	for _, key := range envKeys {
		originalEnvs[key] = os.Getenv(key)
	}

	// 测试后恢复环境变量
	defer func() {
		for key, value := range originalEnvs {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	t.Run("加载默认配置成功", func(t *testing.T) {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
		os.Setenv("PROXYPOOL_JWT_SECRET", "test-secret-key-for-development-32-chars-long-at-least")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		// 验证默认值
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 10*time.Minute, cfg.Pool.ReservationTTL)
		assert.Equal(t, time.Minute, cfg.Pool.SweepInterval)
		assert.Equal(t, 1000, cfg.Pool.MaxBatch)
		assert.Equal(t, 100, cfg.Pool.UploadBatchSize)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.False(t, cfg.Log.Development)
		assert.Equal(t, "", cfg.Database.Type)
		assert.Equal(t, 10, cfg.RateLimit.LoginMaxAttempts)
		assert.Equal(t, "proxypool", cfg.JWT.Issuer)
		assert.Equal(t, 15*time.Minute, cfg.JWT.AccessExpiry)
		assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshExpiry)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		os.Setenv("PROXYPOOL_JWT_SECRET", "custom-jwt-secret-key-32-chars-long-minimum")
		os.Setenv("PROXYPOOL_SERVER_HOST", "127.0.0.1")
		os.Setenv("PROXYPOOL_SERVER_PORT", "9090")
		os.Setenv("PROXYPOOL_POOL_RESERVATION_TTL", "5m")
		os.Setenv("PROXYPOOL_POOL_MAX_BATCH", "200")
		os.Setenv("PROXYPOOL_CORS_ALLOWED_ORIGINS", "https://pool.example.com,https://admin.example.com")
		os.Setenv("PROXYPOOL_DATABASE_TYPE", "postgres")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 5*time.Minute, cfg.Pool.ReservationTTL)
		assert.Equal(t, 200, cfg.Pool.MaxBatch)
		assert.Equal(t, []string{"https://pool.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "postgres", cfg.Database.Type)
	})

	t.Run("拒绝默认JWT密钥", func(t *testing.T) {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("拒绝过短的JWT密钥", func(t *testing.T) {
		os.Setenv("PROXYPOOL_JWT_SECRET", "too-short")

		_, err := Load()
		assert.Error(t, err)
	})
}
