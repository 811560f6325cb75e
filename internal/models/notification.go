package models

import "time"

// NotificationPayload 交给推送服务的报警载荷
type NotificationPayload struct {
	AlertID              string    `json:"alert_id"`
	UserID               string    `json:"user_id"`
	Title                string    `json:"title"`
	Body                 string    `json:"body"`
	Severity             Tier      `json:"severity"`
	HeartRate            float64   `json:"heart_rate"`
	Baseline             float64   `json:"baseline"`
	PercentageAbove      float64   `json:"percentage_above"`
	ConfirmationRequired bool      `json:"confirmation_required"`
	Channel              string    `json:"channel"`
	Timestamp            time.Time `json:"timestamp"`
	DedupKey             string    `json:"dedup_key"`
}
