package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wisefido-anxiety/internal/models"
)

// BaselineCache 基线缓存（key: <prefix><device_id>）
// 只缓存查到的基线，"不存在"从不缓存，避免基线录入后检测仍被禁用
type BaselineCache struct {
	kv     KVStore
	prefix string
	ttl    time.Duration
}

// NewBaselineCache 创建基线缓存
func NewBaselineCache(kv KVStore, prefix string, ttl time.Duration) *BaselineCache {
	return &BaselineCache{kv: kv, prefix: prefix, ttl: ttl}
}

func (c *BaselineCache) key(deviceID string) string {
	return c.prefix + deviceID
}

// Get 读取缓存，未命中返回 ErrCacheMiss
func (c *BaselineCache) Get(ctx context.Context, deviceID string) (*models.Baseline, error) {
	val, err := c.kv.Get(ctx, c.key(deviceID))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get baseline cache: %w", err)
	}

	var b models.Baseline
	if err := json.Unmarshal([]byte(val), &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal baseline cache: %w", err)
	}
	return &b, nil
}

// Set 写入缓存
func (c *BaselineCache) Set(ctx context.Context, b *models.Baseline) error {
	if b == nil {
		return nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}
	if err := c.kv.Set(ctx, c.key(b.DeviceID), string(data), c.ttl); err != nil {
		return fmt.Errorf("failed to set baseline cache: %w", err)
	}
	return nil
}

// Invalidate 删除缓存（设备重新分配或基线更新后调用）
func (c *BaselineCache) Invalidate(ctx context.Context, deviceID string) error {
	if err := c.kv.Delete(ctx, c.key(deviceID)); err != nil {
		return fmt.Errorf("failed to invalidate baseline cache: %w", err)
	}
	return nil
}
