package evaluator

import (
	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"
)

// ConfidenceInput 置信度计算输入
type ConfidenceInput struct {
	Tier         models.Tier
	SpO2Override bool
	Movement     Movement
	HeartRate    float64
	Baseline     float64
	SpO2         *float64
}

// base 各等级的基础置信度
func base(ct config.ConfidenceTable, tier models.Tier) int {
	switch tier {
	case models.TierCritical, models.TierSevere:
		return ct.Severe
	case models.TierModerate:
		return ct.Moderate
	case models.TierMild:
		return ct.Mild
	case models.TierElevated:
		return ct.Elevated
	}
	return 0
}

// Confidence 计算 0-100 的置信度
// 血氧覆盖永远为满分；运动模式把置信度压到 Exercise 值
func Confidence(th config.Thresholds, in ConfidenceInput) int {
	ct := th.Confidence

	if in.SpO2Override {
		return ct.CriticalSpO2
	}
	if in.Tier == models.TierNormal {
		return 0
	}
	if in.Movement.ExerciseDetected {
		return ct.Exercise
	}

	score := base(ct, in.Tier)

	if in.Movement.TremorDetected {
		score += ct.TremorBoost
	}
	if in.Movement.IsResting && in.HeartRate > in.Baseline*th.RestingHRRatio {
		score += ct.RestingBoost
	}

	// 心率之外的异常指标
	if in.SpO2 != nil && *in.SpO2 < th.SpO2Low {
		score += ct.CorroborationBoost
	}
	if in.Movement.HasGyro && in.Movement.GyroActivity > th.TremorGyroMin {
		score += ct.CorroborationBoost
	}

	if HRElevationRatio(in.HeartRate, in.Baseline) >= th.VeryHighHRRatio {
		score += ct.VeryHighHRBoost
	}

	if score > 100 {
		score = 100
	}
	return score
}
