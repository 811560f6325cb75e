package repository

import (
	"context"
	"errors"

	"wisefido-anxiety/internal/models"
	"wisefido-anxiety/internal/store"

	"go.uber.org/zap"
)

// BaselineSource 基线来源查询接口（便于测试替换）
type BaselineSource interface {
	GetActiveAssignment(ctx context.Context, deviceID string) (*models.DeviceAssignment, error)
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

// BaselineResolver 基线解析：缓存 → 设备分配记录 → 用户档案
// 找不到时返回 (nil, nil)，调用方必须视为"检测禁用"，不能用默认值替代
type BaselineResolver struct {
	source BaselineSource
	cache  *store.BaselineCache // 可为 nil
	logger *zap.Logger
}

// NewBaselineResolver 创建基线解析器
func NewBaselineResolver(source BaselineSource, cache *store.BaselineCache, logger *zap.Logger) *BaselineResolver {
	return &BaselineResolver{
		source: source,
		cache:  cache,
		logger: logger,
	}
}

// Resolve 解析设备当前用户的基线
func (r *BaselineResolver) Resolve(ctx context.Context, deviceID string) (*models.Baseline, error) {
	// 1. 缓存
	if r.cache != nil {
		b, err := r.cache.Get(ctx, deviceID)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, store.ErrCacheMiss) {
			r.logger.Warn("Failed to read baseline cache, falling back to database",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
		}
	}

	// 2. 设备分配记录（同时确定用户）
	assignment, err := r.source.GetActiveAssignment(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, nil
	}

	var baseline *models.Baseline
	if validBaseline(assignment.BaselineHeartRate) {
		baseline = &models.Baseline{
			UserID:           assignment.UserID,
			DeviceID:         deviceID,
			RestingHeartRate: *assignment.BaselineHeartRate,
			Source:           models.BaselineSourceAssignment,
			UpdatedAt:        assignment.UpdatedAt,
		}
	} else {
		// 3. 用户档案
		profile, err := r.source.GetUserProfile(ctx, assignment.UserID)
		if err != nil {
			return nil, err
		}
		if profile == nil || !validBaseline(profile.BaselineHeartRate) {
			return nil, nil
		}
		baseline = &models.Baseline{
			UserID:           assignment.UserID,
			DeviceID:         deviceID,
			RestingHeartRate: *profile.BaselineHeartRate,
			Source:           models.BaselineSourceProfile,
			UpdatedAt:        profile.UpdatedAt,
		}
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, baseline); err != nil {
			r.logger.Warn("Failed to write baseline cache",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
		}
	}
	return baseline, nil
}

func validBaseline(v *float64) bool {
	return v != nil && *v > 0
}
