package models

import "time"

// BaselineSource 基线来源
type BaselineSource string

const (
	BaselineSourceAssignment BaselineSource = "device_assignment"
	BaselineSourceProfile    BaselineSource = "user_profile"
)

// Baseline 用户静息心率基线（每个 user+device 同一时刻只有一个有效基线）
type Baseline struct {
	UserID           string         `json:"user_id"`
	DeviceID         string         `json:"device_id"`
	RestingHeartRate float64        `json:"resting_heart_rate"`
	Source           BaselineSource `json:"source"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// DeviceAssignment 设备当前分配记录（对应 device_assignments 表）
type DeviceAssignment struct {
	DeviceID          string    `json:"device_id" db:"device_id"`
	UserID            string    `json:"user_id" db:"user_id"`
	BaselineHeartRate *float64  `json:"baseline_heart_rate,omitempty" db:"baseline_heart_rate"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// UserProfile 用户档案中的基线（对应 user_profiles 表）
type UserProfile struct {
	UserID            string    `json:"user_id" db:"user_id"`
	BaselineHeartRate *float64  `json:"baseline_heart_rate,omitempty" db:"baseline_heart_rate"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}
