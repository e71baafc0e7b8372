package database

import (
	"context"
	"fmt"

	"github.com/aihub/knowledge-qa/internal/config"
	applog "github.com/aihub/knowledge-qa/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var RedisClient *redis.Client

// InitRedis 连接Redis，未启用时返回nil
func InitRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   cfg.DB,
	})

	// 测试连接
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	RedisClient = rdb
	applog.Info("Redis connected", zap.String("addr", addr))
	return rdb, nil
}

func CloseRedis() error {
	if RedisClient == nil {
		return nil
	}
	return RedisClient.Close()
}
