package evaluator

import (
	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"
)

// 触发标记
const (
	FlagSpO2Critical = "spo2_critical"
	FlagLowSpO2      = "low_spo2"
	FlagExercise     = "exercise"
	FlagTremor       = "tremor"
	FlagResting      = "resting"
	FlagGyroActivity = "gyro_activity"
	FlagVeryHighHR   = "very_high_hr"
)

// Severity 即时评估结果
type Severity struct {
	Tier         models.Tier
	SpO2Override bool
	Flags        []string
}

// InstantSeverity 即时评估：固定偏移规则 + 血氧绝对覆盖
// spo2 < SpO2Critical 时无论心率直接 critical
func InstantSeverity(th config.Thresholds, heartRate, baseline float64, spo2 *float64) Severity {
	s := Severity{Tier: OffsetTier(th, heartRate, baseline)}

	if spo2 != nil {
		switch {
		case *spo2 < th.SpO2Critical:
			s.Tier = models.TierCritical
			s.SpO2Override = true
			s.Flags = append(s.Flags, FlagSpO2Critical)
		case *spo2 < th.SpO2Low:
			s.Flags = append(s.Flags, FlagLowSpO2)
		}
	}

	return s
}

// OffsetTier 固定偏移规则（心率高于基线的 BPM）
func OffsetTier(th config.Thresholds, heartRate, baseline float64) models.Tier {
	delta := heartRate - baseline
	switch {
	case delta >= th.CriticalOffset:
		return models.TierCritical
	case delta >= th.SevereOffset:
		return models.TierSevere
	case delta >= th.ModerateOffset:
		return models.TierModerate
	case delta >= th.MildOffset:
		return models.TierMild
	case delta >= th.ElevatedOffset:
		return models.TierElevated
	}
	return models.TierNormal
}

// RatioTier 百分比规则（持续评估路径）
// 低于 elevated 偏移的读数一律为 normal，百分比未达 mild 时为 elevated
func RatioTier(th config.Thresholds, heartRate, baseline float64) models.Tier {
	if baseline <= 0 || heartRate-baseline < th.ElevatedOffset {
		return models.TierNormal
	}
	ratio := heartRate / baseline
	switch {
	case ratio >= th.CriticalRatio:
		return models.TierCritical
	case ratio >= th.SevereRatio:
		return models.TierSevere
	case ratio >= th.ModerateRatio:
		return models.TierModerate
	case ratio >= th.MildRatio:
		return models.TierMild
	}
	return models.TierElevated
}
