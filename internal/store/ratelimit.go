package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"wisefido-anxiety/internal/models"

	"github.com/go-redis/redis/v8"
)

// RateLimiter 按 (user, severity) 的冷却窗口
// Reserve 的检查与写入是一次原子操作：allowed=true 表示本次占用了新窗口，
// allowed=false 时返回的 entry 是正在生效的那个窗口
// Release 撤销一次占用（投递失败时），仅当窗口仍是该 entry 时才删除
type RateLimiter interface {
	Reserve(ctx context.Context, userID string, severity models.Tier, now time.Time, cooldown time.Duration) (entry models.RateLimitEntry, allowed bool, err error)
	Release(ctx context.Context, userID string, severity models.Tier, entry models.RateLimitEntry) error
}

// reserveAttempts 窗口在 SETNX 与 GET 之间过期时重新占用的次数上限
const reserveAttempts = 2

// RedisRateLimiter 基于 SET NX PX 的冷却窗口
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisRateLimiter 创建 Redis 限流器
func NewRedisRateLimiter(client *redis.Client, prefix string) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, prefix: prefix}
}

func rateLimitKey(prefix, userID string, severity models.Tier) string {
	return fmt.Sprintf("%s%s:%s", prefix, userID, severity)
}

// Reserve 尝试占用冷却窗口
func (l *RedisRateLimiter) Reserve(ctx context.Context, userID string, severity models.Tier, now time.Time, cooldown time.Duration) (models.RateLimitEntry, bool, error) {
	key := rateLimitKey(l.prefix, userID, severity)
	entry := models.RateLimitEntry{
		UserID:        userID,
		Severity:      severity,
		LastSentAt:    now,
		NextAllowedAt: now.Add(cooldown),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return models.RateLimitEntry{}, false, fmt.Errorf("failed to marshal rate limit entry: %w", err)
	}

	for attempt := 0; attempt < reserveAttempts; attempt++ {
		ok, err := l.client.SetNX(ctx, key, data, cooldown).Result()
		if err != nil {
			return models.RateLimitEntry{}, false, fmt.Errorf("failed to reserve rate limit: %w", err)
		}
		if ok {
			return entry, true, nil
		}

		// 已被占用：读取当前窗口；恰好过期则重新占用
		val, err := l.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return models.RateLimitEntry{}, false, fmt.Errorf("failed to get rate limit entry: %w", err)
		}
		existing, err := decodeRateLimitEntry(val)
		if err != nil {
			return models.RateLimitEntry{}, false, err
		}
		return existing, false, nil
	}
	return models.RateLimitEntry{}, false, fmt.Errorf("failed to reserve rate limit: window for %s changed concurrently", key)
}

// Release 比较后删除：只删除仍等于 entry 的窗口
func (l *RedisRateLimiter) Release(ctx context.Context, userID string, severity models.Tier, entry models.RateLimitEntry) error {
	key := rateLimitKey(l.prefix, userID, severity)

	err := l.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get rate limit entry: %w", err)
		}
		current, err := decodeRateLimitEntry(val)
		if err != nil {
			return err
		}
		if !sameWindow(current, entry) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)

	if err != nil {
		// 期间被改写：新窗口不属于本次占用
		if errors.Is(err, redis.TxFailedErr) {
			return nil
		}
		return fmt.Errorf("failed to release rate limit: %w", err)
	}
	return nil
}

func decodeRateLimitEntry(val string) (models.RateLimitEntry, error) {
	var entry models.RateLimitEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return models.RateLimitEntry{}, fmt.Errorf("failed to unmarshal rate limit entry: %w", err)
	}
	return entry, nil
}

func sameWindow(a, b models.RateLimitEntry) bool {
	return a.UserID == b.UserID &&
		a.Severity == b.Severity &&
		a.LastSentAt.Equal(b.LastSentAt) &&
		a.NextAllowedAt.Equal(b.NextAllowedAt)
}

// MemoryRateLimiter 进程内限流器，以读数时间判断窗口
type MemoryRateLimiter struct {
	mu      sync.Mutex
	entries map[string]models.RateLimitEntry
}

// NewMemoryRateLimiter 创建内存限流器
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{entries: make(map[string]models.RateLimitEntry)}
}

// Reserve 尝试占用冷却窗口
func (l *MemoryRateLimiter) Reserve(_ context.Context, userID string, severity models.Tier, now time.Time, cooldown time.Duration) (models.RateLimitEntry, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := rateLimitKey("", userID, severity)
	if existing, ok := l.entries[key]; ok && now.Before(existing.NextAllowedAt) {
		return existing, false, nil
	}

	entry := models.RateLimitEntry{
		UserID:        userID,
		Severity:      severity,
		LastSentAt:    now,
		NextAllowedAt: now.Add(cooldown),
	}
	l.entries[key] = entry
	return entry, true, nil
}

// Release 窗口未被改写时删除
func (l *MemoryRateLimiter) Release(_ context.Context, userID string, severity models.Tier, entry models.RateLimitEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := rateLimitKey("", userID, severity)
	if existing, ok := l.entries[key]; ok && sameWindow(existing, entry) {
		delete(l.entries, key)
	}
	return nil
}
