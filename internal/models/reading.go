package models

import (
	"math"
	"time"
)

// Vec3 三轴向量（加速度计 m/s²，陀螺仪 rad/s）
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude 向量模长
func (v Vec3) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// IsFinite 三个分量均为有限值
func (v Vec3) IsFinite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Reading 可穿戴设备的一次采样（入库后不可变）
// spo2 / accel / gyro 为可选字段，缺失时跳过依赖它们的规则
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	HeartRate *float64  `json:"heart_rate"`
	SpO2      *float64  `json:"spo2,omitempty"`
	Accel     *Vec3     `json:"accel,omitempty"`
	Gyro      *Vec3     `json:"gyro,omitempty"`
	DeviceID  string    `json:"device_id"`
	SessionID string    `json:"session_id"`
}

// HasMotion 加速度计和陀螺仪数据均存在
func (r *Reading) HasMotion() bool {
	return r.Accel != nil && r.Gyro != nil
}
