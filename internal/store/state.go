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

// ErrStateConflict 写入时版本号已被其他评估修改
var ErrStateConflict = errors.New("anomaly state conflict")

// StateStore 每个用户一份 AnomalyState，写入使用版本号做乐观并发控制
type StateStore interface {
	// Get 读取状态，不存在时返回 Version=0 的 normal 状态
	Get(ctx context.Context, userID string) (models.AnomalyState, error)
	// CompareAndSwap 仅当当前版本等于 expectedVersion 时写入，写入后 Version = expectedVersion+1
	CompareAndSwap(ctx context.Context, next models.AnomalyState, expectedVersion int64) (models.AnomalyState, error)
}

// RedisStateStore 基于 Redis WATCH/MULTI 的状态存储
type RedisStateStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStateStore 创建 Redis 状态存储
func NewRedisStateStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStateStore) key(userID string) string {
	return s.prefix + userID
}

// Get 读取状态
func (s *RedisStateStore) Get(ctx context.Context, userID string) (models.AnomalyState, error) {
	val, err := s.client.Get(ctx, s.key(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return models.AnomalyState{UserID: userID}, nil
		}
		return models.AnomalyState{}, fmt.Errorf("failed to get anomaly state: %w", err)
	}
	return decodeState(userID, val)
}

// CompareAndSwap 乐观写入
func (s *RedisStateStore) CompareAndSwap(ctx context.Context, next models.AnomalyState, expectedVersion int64) (models.AnomalyState, error) {
	key := s.key(next.UserID)
	next.Version = expectedVersion + 1

	data, err := json.Marshal(next)
	if err != nil {
		return models.AnomalyState{}, fmt.Errorf("failed to marshal anomaly state: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		var current int64
		val, err := tx.Get(ctx, key).Result()
		switch {
		case err == redis.Nil:
		case err != nil:
			return fmt.Errorf("failed to get anomaly state: %w", err)
		default:
			st, err := decodeState(next.UserID, val)
			if err != nil {
				return err
			}
			current = st.Version
		}

		if current != expectedVersion {
			return ErrStateConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)

	if err != nil {
		if errors.Is(err, redis.TxFailedErr) || errors.Is(err, ErrStateConflict) {
			return models.AnomalyState{}, ErrStateConflict
		}
		return models.AnomalyState{}, fmt.Errorf("failed to write anomaly state: %w", err)
	}
	return next, nil
}

func decodeState(userID, val string) (models.AnomalyState, error) {
	var st models.AnomalyState
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return models.AnomalyState{}, fmt.Errorf("failed to unmarshal anomaly state: %w", err)
	}
	st.UserID = userID
	return st, nil
}

// MemoryStateStore 进程内状态存储（单实例部署与测试）
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]models.AnomalyState
}

// NewMemoryStateStore 创建内存状态存储
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]models.AnomalyState)}
}

// Get 读取状态
func (s *MemoryStateStore) Get(_ context.Context, userID string) (models.AnomalyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[userID]
	if !ok {
		return models.AnomalyState{UserID: userID}, nil
	}
	return st, nil
}

// CompareAndSwap 乐观写入
func (s *MemoryStateStore) CompareAndSwap(_ context.Context, next models.AnomalyState, expectedVersion int64) (models.AnomalyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.states[next.UserID].Version != expectedVersion {
		return models.AnomalyState{}, ErrStateConflict
	}
	next.Version = expectedVersion + 1
	s.states[next.UserID] = next
	return next, nil
}
