package evaluator

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"wisefido-anxiety/internal/models"

	"github.com/google/uuid"
)

// AlertBuilder 报警构建器
type AlertBuilder struct {
	userID   string
	deviceID string
}

// NewAlertBuilder 创建报警构建器
func NewAlertBuilder(userID, deviceID string) *AlertBuilder {
	return &AlertBuilder{
		userID:   userID,
		deviceID: deviceID,
	}
}

// DedupKey 去重键：user + severity + 冷却窗口起点（毫秒）
func DedupKey(userID string, severity models.Tier, windowStart time.Time) string {
	return fmt.Sprintf("%s:%s:%d", userID, severity, windowStart.UnixMilli())
}

// BuildAlert 根据评估结果构建报警
// windowStart 为本次占用的冷却窗口起点
func (b *AlertBuilder) BuildAlert(reading models.Reading, baseline float64, result Result, windowStart time.Time) (*models.Alert, error) {
	if !result.Decision.Trigger {
		return nil, fmt.Errorf("cannot build alert for non-trigger decision")
	}

	hr := *reading.HeartRate
	triggerData := BuildTriggerData(reading, baseline, result)

	// 序列化 trigger_data
	triggerDataJSON, err := json.Marshal(triggerData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	d := result.Decision
	return &models.Alert{
		ID:                   uuid.New().String(),
		UserID:               b.userID,
		DeviceID:             b.deviceID,
		Severity:             d.Severity,
		HeartRate:            hr,
		BaselineAtTime:       baseline,
		Confidence:           d.Confidence,
		ConfirmationRequired: d.ConfirmationRequired,
		Timestamp:            reading.Timestamp,
		DedupKey:             DedupKey(b.userID, d.Severity, windowStart),
		Rule:                 string(d.Rule),
		DeliveryStatus:       models.DeliveryPending,
		TriggerData:          triggerDataJSON,
		CreatedAt:            time.Now(),
	}, nil
}

// BuildTriggerData 构建触发数据快照
func BuildTriggerData(reading models.Reading, baseline float64, result Result) *models.TriggerData {
	td := &models.TriggerData{
		SpO2:            reading.SpO2,
		PercentageAbove: PercentageAbove(*reading.HeartRate, baseline),
		Flags:           result.Flags,
		SessionID:       reading.SessionID,
	}

	if result.Movement.HasAccel {
		v := result.Movement.MovementIntensity
		td.MovementIntensity = &v
	}
	if result.Movement.HasGyro {
		v := result.Movement.GyroActivity
		td.GyroActivity = &v
	}
	if result.Decision.Rule == RuleSustained {
		v := result.SustainedDuration.Seconds()
		td.DurationSec = &v
	}

	return td
}

// PercentageAbove 心率高出基线的百分比（保留一位小数）
func PercentageAbove(heartRate, baseline float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return math.Round((heartRate-baseline)/baseline*1000) / 10
}
