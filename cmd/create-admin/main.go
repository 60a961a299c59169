package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"proxypool/backend/internal/config"
	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/service"
	"proxypool/backend/internal/storage"
	"proxypool/backend/internal/storage/postgres"
	sqlstore "proxypool/backend/internal/storage/sql"
)

// create-admin 创建初始管理员账户并打印访问密钥。
//
// 密钥只在这里打印一次，数据库中只保存摘要，丢失后只能轮换。
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: create-admin <username> [admin|manager|user]")
		os.Exit(1)
	}

	username := os.Args[1]
	role := domain.RoleAdmin
	if len(os.Args) >= 3 {
		role = domain.UserRole(os.Args[2])
		if !domain.ValidRole(role) {
			fmt.Printf("Invalid role: %s (supported: admin, manager, user)\n", os.Args[2])
			os.Exit(1)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	store, err := openStore(cfg)
	if err != nil {
		fmt.Printf("Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	admin := service.NewAdminService(store, nil, nil, zap.NewNop())
	user, accessKey, err := admin.CreateUser(service.CreateUserInput{
		Username: username,
		Role:     role,
	})
	if err != nil {
		fmt.Printf("Failed to create user: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("User created:")
	fmt.Printf("  ID:       %s\n", user.ID)
	fmt.Printf("  Username: %s\n", user.Username)
	fmt.Printf("  Role:     %s\n", user.Role)
	fmt.Println()
	fmt.Printf("Access key (save it now, it will not be shown again):\n  %s\n", accessKey)
}

// openStore 连接配置指定的数据库。
// 账户必须落库才有意义，这里不提供内存存储。
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Database.Type {
	case "mysql", "postgres":
		return sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
			cfg.Pool.ReservationTTL,
		)
	case "pgx":
		client, err := postgres.NewClient(
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
			zap.NewNop(),
		)
		if err != nil {
			return nil, err
		}
		store, err := postgres.NewStore(client, cfg.Pool.ReservationTTL)
		if err != nil {
			client.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("database is not configured, set PROXYPOOL_DATABASE_TYPE and PROXYPOOL_DATABASE_DSN")
	}
}
