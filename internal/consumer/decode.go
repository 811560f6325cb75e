package consumer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wisefido-anxiety/internal/models"
)

// wireReading 设备上报格式，timestamp 支持 RFC3339 字符串或毫秒时间戳
type wireReading struct {
	Timestamp json.RawMessage `json:"timestamp"`
	HeartRate *float64        `json:"heart_rate"`
	SpO2      *float64        `json:"spo2"`
	Accel     *models.Vec3    `json:"accel"`
	Gyro      *models.Vec3    `json:"gyro"`
	DeviceID  string          `json:"device_id"`
	SessionID string          `json:"session_id"`
}

// DecodeReading 解析读数；消息体缺少 device_id 时使用 fallbackDeviceID（如从主题中解析）
func DecodeReading(payload []byte, fallbackDeviceID string) (models.Reading, error) {
	var w wireReading
	if err := json.Unmarshal(payload, &w); err != nil {
		return models.Reading{}, fmt.Errorf("failed to unmarshal reading: %w", err)
	}

	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return models.Reading{}, err
	}

	r := models.Reading{
		Timestamp: ts,
		HeartRate: w.HeartRate,
		SpO2:      w.SpO2,
		Accel:     w.Accel,
		Gyro:      w.Gyro,
		DeviceID:  w.DeviceID,
		SessionID: w.SessionID,
	}
	if r.DeviceID == "" {
		r.DeviceID = fallbackDeviceID
	}
	if r.DeviceID == "" {
		return models.Reading{}, fmt.Errorf("reading has no device_id")
	}
	return r, nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return time.Time{}, fmt.Errorf("reading has no timestamp")
	}

	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", str, err)
		}
		return t, nil
	}

	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %s: %w", s, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// deviceFromTopic 从 wearable/{device_id}/reading 中提取设备 ID
func deviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}
