package redis

import (
	"context"
	"fmt"
	"time"

	"wisefido-anxiety/common/config"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient 创建Redis客户端
// 未配置的连接池与超时参数沿用 go-redis 默认值
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

// Ping 测试Redis连接（最多等待 5 秒）
func Ping(ctx context.Context, client *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis %s: %w", client.Options().Addr, err)
	}
	return nil
}

// Close 关闭Redis连接
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
