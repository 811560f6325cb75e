package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-anxiety/internal/models"

	"go.uber.org/zap"
)

// BaselineRepository 基线来源仓库（只读）
//   - device_assignments：设备当前分配记录（主来源，同时提供 device → user 映射）
//   - user_profiles：用户档案（次来源）
type BaselineRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBaselineRepository 创建基线仓库
func NewBaselineRepository(db *sql.DB, logger *zap.Logger) *BaselineRepository {
	return &BaselineRepository{
		db:     db,
		logger: logger,
	}
}

// GetActiveAssignment 获取设备当前有效的分配记录，不存在时返回 (nil, nil)
func (r *BaselineRepository) GetActiveAssignment(ctx context.Context, deviceID string) (*models.DeviceAssignment, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	query := `
		SELECT device_id, user_id, baseline_heart_rate, updated_at
		FROM device_assignments
		WHERE device_id = $1
		  AND is_active = TRUE
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var a models.DeviceAssignment
	var baseline sql.NullFloat64
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&a.DeviceID,
		&a.UserID,
		&baseline,
		&a.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query device assignment: %w", err)
	}

	if baseline.Valid {
		a.BaselineHeartRate = &baseline.Float64
	}
	return &a, nil
}

// GetUserProfile 获取用户档案中的基线，不存在时返回 (nil, nil)
func (r *BaselineRepository) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := `
		SELECT user_id, baseline_heart_rate, updated_at
		FROM user_profiles
		WHERE user_id = $1
	`

	var p models.UserProfile
	var baseline sql.NullFloat64
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID,
		&baseline,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user profile: %w", err)
	}

	if baseline.Valid {
		p.BaselineHeartRate = &baseline.Float64
	}
	return &p, nil
}
