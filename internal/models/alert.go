package models

import (
	"encoding/json"
	"time"
)

// DeliveryStatus 报警投递状态
type DeliveryStatus string

const (
	DeliveryPending     DeliveryStatus = "pending"
	DeliveryDelivered   DeliveryStatus = "delivered"
	DeliveryUndelivered DeliveryStatus = "undelivered"
)

// UserResponse 用户对确认提示的回复
type UserResponse string

const (
	ResponseYes       UserResponse = "yes"
	ResponseNo        UserResponse = "no"
	ResponseDismissed UserResponse = "dismissed"
)

// Valid 回复值是否合法
func (r UserResponse) Valid() bool {
	switch r {
	case ResponseYes, ResponseNo, ResponseDismissed:
		return true
	}
	return false
}

// AnomalyState 每个用户唯一的持续状态（对应 Redis anxiety:state:<user_id>）
type AnomalyState struct {
	UserID               string    `json:"user_id"`
	Tier                 Tier      `json:"tier"`
	TierSinceTimestamp   time.Time `json:"tier_since_timestamp"`
	LastReadingTimestamp time.Time `json:"last_reading_timestamp"`
	Version              int64     `json:"version"`
}

// Alert 报警记录（对应 anxiety_alerts 表，创建后不可变，投递状态与用户回复除外）
type Alert struct {
	ID                   string          `json:"id" db:"alert_id"`
	UserID               string          `json:"user_id" db:"user_id"`
	DeviceID             string          `json:"device_id" db:"device_id"`
	Severity             Tier            `json:"severity" db:"severity"`
	HeartRate            float64         `json:"heart_rate" db:"heart_rate"`
	BaselineAtTime       float64         `json:"baseline_at_time" db:"baseline_at_time"`
	Confidence           int             `json:"confidence" db:"confidence"`
	ConfirmationRequired bool            `json:"confirmation_required" db:"confirmation_required"`
	Timestamp            time.Time       `json:"timestamp" db:"triggered_at"`
	DedupKey             string          `json:"dedup_key" db:"dedup_key"`
	Rule                 string          `json:"rule" db:"rule"`
	DeliveryStatus       DeliveryStatus  `json:"delivery_status" db:"delivery_status"`
	UserResponse         *UserResponse   `json:"user_response,omitempty" db:"user_response"`
	RespondedAt          *time.Time      `json:"responded_at,omitempty" db:"responded_at"`
	TriggerData          json.RawMessage `json:"trigger_data" db:"trigger_data"` // JSONB
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
}

// TriggerData 触发数据快照（JSONB 结构）
type TriggerData struct {
	SpO2              *float64 `json:"spo2,omitempty"`
	MovementIntensity *float64 `json:"movement_intensity,omitempty"`
	GyroActivity      *float64 `json:"gyro_activity,omitempty"`
	DurationSec       *float64 `json:"duration_sec,omitempty"`
	PercentageAbove   float64  `json:"percentage_above"`
	Flags             []string `json:"flags,omitempty"`
	SessionID         string   `json:"session_id"`
}

// RateLimitEntry 每个 (user, severity) 一条冷却记录
type RateLimitEntry struct {
	UserID        string    `json:"user_id"`
	Severity      Tier      `json:"severity"`
	LastSentAt    time.Time `json:"last_sent_at"`
	NextAllowedAt time.Time `json:"next_allowed_at"`
}

// SuppressedTrigger 被冷却窗口抑制的触发（对应 anxiety_alert_suppressions 表）
type SuppressedTrigger struct {
	UserID       string    `json:"user_id" db:"user_id"`
	Severity     Tier      `json:"severity" db:"severity"`
	Rule         string    `json:"rule" db:"rule"`
	HeartRate    float64   `json:"heart_rate" db:"heart_rate"`
	Confidence   int       `json:"confidence" db:"confidence"`
	DedupKey     string    `json:"dedup_key" db:"dedup_key"` // 抑制它的那个窗口的 dedup key
	SuppressedAt time.Time `json:"suppressed_at" db:"suppressed_at"`
}

// ConfirmationResponse 客户端对确认提示的回复
type ConfirmationResponse struct {
	AlertID      string       `json:"alert_id"`
	UserResponse UserResponse `json:"user_response"`
	RespondedAt  time.Time    `json:"responded_at"`
}
