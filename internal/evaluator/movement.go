package evaluator

import (
	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"
)

// Movement 运动分类结果
// HasAccel / HasGyro 为 false 时，依赖对应传感器的模式一律视为未检测到
type Movement struct {
	MovementIntensity float64 `json:"movement_intensity"`
	GyroActivity      float64 `json:"gyro_activity"`
	HasAccel          bool    `json:"has_accel"`
	HasGyro           bool    `json:"has_gyro"`
	ExerciseDetected  bool    `json:"exercise_detected"`
	TremorDetected    bool    `json:"tremor_detected"`
	IsResting         bool    `json:"is_resting"`
}

// MovementIntensity 加速度模长偏离重力的程度，映射到 0-100
func MovementIntensity(th config.Thresholds, accel models.Vec3) float64 {
	return clamp(abs(accel.Magnitude()-th.Gravity) * th.MovementScale)
}

// GyroActivity 陀螺仪模长映射到 0-100
func GyroActivity(th config.Thresholds, gyro models.Vec3) float64 {
	return clamp(gyro.Magnitude() * th.GyroScale)
}

// HRElevationRatio (心率 − 基线) / 基线
func HRElevationRatio(heartRate, baseline float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return (heartRate - baseline) / baseline
}

// ClassifyMovement 运动 / 震颤 / 静息分类
func ClassifyMovement(th config.Thresholds, accel, gyro *models.Vec3, heartRate, baseline float64) Movement {
	var m Movement

	if accel != nil {
		m.HasAccel = true
		m.MovementIntensity = MovementIntensity(th, *accel)
	}
	if gyro != nil {
		m.HasGyro = true
		m.GyroActivity = GyroActivity(th, *gyro)
	}

	if m.HasAccel {
		m.IsResting = m.MovementIntensity < th.RestingMovementMax
	}

	if m.HasAccel && m.HasGyro {
		ratio := HRElevationRatio(heartRate, baseline)
		m.ExerciseDetected = m.MovementIntensity > th.ExerciseMovementMin &&
			ratio > th.ExerciseRatioMin && ratio < th.ExerciseRatioMax &&
			m.GyroActivity < th.ExerciseGyroMax
		m.TremorDetected = m.GyroActivity > th.TremorGyroMin &&
			m.MovementIntensity > th.TremorMovementMin &&
			m.MovementIntensity < th.TremorMovementMax
	}

	return m
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
