package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wisefido-anxiety/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrAlertNotFound 报警不存在
	ErrAlertNotFound = errors.New("alert not found")
	// ErrAlreadyResponded 报警已有不同的用户回复
	ErrAlreadyResponded = errors.New("alert already responded")
)

// AlertRepository 报警历史仓库（anxiety_alerts 只追加；anxiety_alert_suppressions 记录被冷却抑制的触发）
type AlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertRepository 创建报警仓库
func NewAlertRepository(db *sql.DB, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{
		db:     db,
		logger: logger,
	}
}

const alertColumns = `
	alert_id,
	user_id,
	device_id,
	severity,
	heart_rate,
	baseline_at_time,
	confidence,
	confirmation_required,
	triggered_at,
	dedup_key,
	rule,
	delivery_status,
	user_response,
	responded_at,
	trigger_data,
	created_at
`

// CreateAlert 创建报警记录（dedup_key 唯一，重复写入返回错误）
func (r *AlertRepository) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	if alert.ID == "" || alert.UserID == "" {
		return fmt.Errorf("alert_id and user_id are required")
	}

	triggerData := []byte(alert.TriggerData)
	if len(triggerData) == 0 {
		triggerData = []byte("{}")
	}

	query := `
		INSERT INTO anxiety_alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULL, NULL, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		alert.ID,
		alert.UserID,
		alert.DeviceID,
		alert.Severity.String(),
		alert.HeartRate,
		alert.BaselineAtTime,
		alert.Confidence,
		alert.ConfirmationRequired,
		alert.Timestamp,
		alert.DedupKey,
		alert.Rule,
		string(alert.DeliveryStatus),
		triggerData,
		alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// UpdateDeliveryStatus 更新投递状态
func (r *AlertRepository) UpdateDeliveryStatus(ctx context.Context, alertID string, status models.DeliveryStatus) error {
	query := `
		UPDATE anxiety_alerts
		SET delivery_status = $2
		WHERE alert_id = $1
	`
	result, err := r.db.ExecContext(ctx, query, alertID, string(status))
	if err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrAlertNotFound, alertID)
	}
	return nil
}

// RecordSuppression 记录被冷却窗口抑制的触发
func (r *AlertRepository) RecordSuppression(ctx context.Context, s *models.SuppressedTrigger) error {
	query := `
		INSERT INTO anxiety_alert_suppressions (
			user_id, severity, rule, heart_rate, confidence, dedup_key, suppressed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.UserID,
		s.Severity.String(),
		s.Rule,
		s.HeartRate,
		s.Confidence,
		s.DedupKey,
		suppressedAt(s.SuppressedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record suppression: %w", err)
	}
	return nil
}

// RecordConfirmation 记录用户回复（相同回复重复提交视为成功，首次回复时间不变）
func (r *AlertRepository) RecordConfirmation(ctx context.Context, resp models.ConfirmationResponse) error {
	if !resp.UserResponse.Valid() {
		return fmt.Errorf("invalid user_response: %q", resp.UserResponse)
	}
	if !validAlertID(resp.AlertID) {
		return fmt.Errorf("%w: %s", ErrAlertNotFound, resp.AlertID)
	}

	query := `
		UPDATE anxiety_alerts
		SET user_response = $2,
		    responded_at = COALESCE(responded_at, $3)
		WHERE alert_id = $1
		  AND (user_response IS NULL OR user_response = $2)
	`
	result, err := r.db.ExecContext(ctx, query, resp.AlertID, string(resp.UserResponse), resp.RespondedAt)
	if err != nil {
		return fmt.Errorf("failed to record confirmation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// 区分不存在与已有不同回复
	var existing sql.NullString
	err = r.db.QueryRowContext(ctx, `SELECT user_response FROM anxiety_alerts WHERE alert_id = $1`, resp.AlertID).Scan(&existing)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", ErrAlertNotFound, resp.AlertID)
		}
		return fmt.Errorf("failed to query alert: %w", err)
	}
	return fmt.Errorf("%w: %s", ErrAlreadyResponded, existing.String)
}

// GetAlert 获取单条报警，不存在时返回 (nil, nil)
func (r *AlertRepository) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	if !validAlertID(alertID) {
		return nil, nil
	}
	query := `SELECT ` + alertColumns + ` FROM anxiety_alerts WHERE alert_id = $1`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// validAlertID alert_id 列为 UUID，非法格式不可能命中
func validAlertID(alertID string) bool {
	_, err := uuid.Parse(alertID)
	return err == nil
}

// ListAlertsByUser 按时间倒序列出用户的报警历史
func (r *AlertRepository) ListAlertsByUser(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	query := `
		SELECT ` + alertColumns + `
		FROM anxiety_alerts
		WHERE user_id = $1
		ORDER BY triggered_at DESC
		LIMIT $2
	`
	return r.queryAlerts(ctx, query, userID, normalizeLimit(limit))
}

// ListUndeliveredAlerts 列出投递失败待对账的报警（按时间正序）
func (r *AlertRepository) ListUndeliveredAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM anxiety_alerts
		WHERE delivery_status = $1
		ORDER BY triggered_at ASC
		LIMIT $2
	`
	return r.queryAlerts(ctx, query, string(models.DeliveryUndelivered), normalizeLimit(limit))
}

func (r *AlertRepository) queryAlerts(ctx context.Context, query string, args ...interface{}) ([]models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return alerts, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var a models.Alert
	var severity, deliveryStatus string
	var userResponse sql.NullString
	var respondedAt sql.NullTime
	var triggerData []byte

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.DeviceID,
		&severity,
		&a.HeartRate,
		&a.BaselineAtTime,
		&a.Confidence,
		&a.ConfirmationRequired,
		&a.Timestamp,
		&a.DedupKey,
		&a.Rule,
		&deliveryStatus,
		&userResponse,
		&respondedAt,
		&triggerData,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tier, err := models.ParseTier(severity)
	if err != nil {
		return nil, err
	}
	a.Severity = tier
	a.DeliveryStatus = models.DeliveryStatus(deliveryStatus)
	if userResponse.Valid {
		resp := models.UserResponse(userResponse.String)
		a.UserResponse = &resp
	}
	if respondedAt.Valid {
		t := respondedAt.Time
		a.RespondedAt = &t
	}
	if len(triggerData) > 0 {
		a.TriggerData = append([]byte(nil), triggerData...)
	}
	return &a, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

// suppressedAt 默认使用当前时间
func suppressedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
