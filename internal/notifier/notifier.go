package notifier

import (
	"context"
	"errors"
	"fmt"

	"wisefido-anxiety/internal/models"
)

// ErrDeliveryFailed 重试耗尽后仍未送达
var ErrDeliveryFailed = errors.New("notification delivery failed")

// Notifier 通知投递通道（推送网关、MQTT 等）
type Notifier interface {
	// Notify 投递一条通知，返回 nil 表示对端已接收
	Notify(ctx context.Context, payload *models.NotificationPayload) error
	// Channel 通道标识，如 "push"、"mqtt"
	Channel() string
}

// BuildPayload 根据报警构建通知内容
func BuildPayload(alert *models.Alert, percentageAbove float64, channel string) *models.NotificationPayload {
	title, body := messageFor(alert, percentageAbove)
	return &models.NotificationPayload{
		AlertID:              alert.ID,
		UserID:               alert.UserID,
		Title:                title,
		Body:                 body,
		Severity:             alert.Severity,
		HeartRate:            alert.HeartRate,
		Baseline:             alert.BaselineAtTime,
		PercentageAbove:      percentageAbove,
		ConfirmationRequired: alert.ConfirmationRequired,
		Channel:              channel,
		Timestamp:            alert.Timestamp,
		DedupKey:             alert.DedupKey,
	}
}

func messageFor(alert *models.Alert, percentageAbove float64) (string, string) {
	if alert.Rule == "spo2_override" {
		return "Low blood oxygen detected",
			"Your blood oxygen is below a safe level. Please seek help if you feel unwell."
	}

	hr := fmt.Sprintf("Your heart rate is %.0f BPM, %.0f%% above your resting baseline.", alert.HeartRate, percentageAbove)
	if alert.ConfirmationRequired {
		return "Are you feeling anxious?", hr + " Tap to let us know how you feel."
	}
	switch alert.Severity {
	case models.TierCritical:
		return "Critical anxiety alert", hr + " Try slow breathing and contact your care team."
	default:
		return "Severe anxiety alert", hr + " Try a guided breathing exercise now."
	}
}
