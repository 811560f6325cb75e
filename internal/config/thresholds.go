package config

import "time"

// Thresholds 焦虑检测的全部阈值（即时评估与持续评估共用同一份配置，两套规则各自独立）
type Thresholds struct {
	// 固定偏移规则（即时评估）：心率高于基线的 BPM
	ElevatedOffset float64
	MildOffset     float64
	ModerateOffset float64
	SevereOffset   float64
	CriticalOffset float64

	// 百分比规则（持续评估）：心率 / 基线
	MildRatio     float64
	ModerateRatio float64
	SevereRatio   float64
	CriticalRatio float64

	// 血氧
	SpO2Critical float64 // 低于该值直接 critical，无需确认
	SpO2Low      float64 // [SpO2Critical, SpO2Low) 记为 low_spo2

	// 运动强度换算
	Gravity       float64 // 重力加速度模长
	MovementScale float64 // |‖accel‖ − g| 的放大系数
	GyroScale     float64 // ‖gyro‖ 的放大系数

	// 运动模式（抑制报警）
	ExerciseMovementMin float64
	ExerciseRatioMin    float64
	ExerciseRatioMax    float64
	ExerciseGyroMax     float64

	// 震颤模式（提高置信度）
	TremorGyroMin     float64
	TremorMovementMin float64
	TremorMovementMax float64

	// 静息状态
	RestingMovementMax float64
	RestingHRRatio     float64 // 静息焦虑路径要求 心率 > 基线 × RestingHRRatio

	VeryHighHRRatio float64 // (心率 − 基线) / 基线 达到该值视为心率极高

	SustainedMinDuration time.Duration
	ExpectedInterval     time.Duration // 采样间隔，超过 2 倍视为断档

	Confidence ConfidenceTable
}

// ConfidenceTable 置信度基础分、加分项与触发下限
type ConfidenceTable struct {
	CriticalSpO2 int
	Severe       int
	Moderate     int
	Mild         int
	Elevated     int
	Exercise     int

	TremorBoost        int
	RestingBoost       int
	CorroborationBoost int
	VeryHighHRBoost    int

	TremorTriggerMin  int
	RestingTriggerMin int
}

// DefaultThresholds 默认阈值
func DefaultThresholds() Thresholds {
	return Thresholds{
		ElevatedOffset: 10,
		MildOffset:     15,
		ModerateOffset: 25,
		SevereOffset:   35,
		CriticalOffset: 45,

		MildRatio:     1.20,
		ModerateRatio: 1.30,
		SevereRatio:   1.50,
		CriticalRatio: 1.80,

		SpO2Critical: 90,
		SpO2Low:      94,

		Gravity:       9.8,
		MovementScale: 10,
		GyroScale:     100,

		ExerciseMovementMin: 30,
		ExerciseRatioMin:    0.2,
		ExerciseRatioMax:    0.8,
		ExerciseGyroMax:     50,

		TremorGyroMin:     40,
		TremorMovementMin: 5,
		TremorMovementMax: 30,

		RestingMovementMax: 15,
		RestingHRRatio:     1.2,

		VeryHighHRRatio: 0.3,

		SustainedMinDuration: 30 * time.Second,
		ExpectedInterval:     5 * time.Second,

		Confidence: ConfidenceTable{
			CriticalSpO2: 100,
			Severe:       90,
			Moderate:     75,
			Mild:         70,
			Elevated:     60,
			Exercise:     10,

			TremorBoost:        10,
			RestingBoost:       25,
			CorroborationBoost: 10,
			VeryHighHRBoost:    10,

			TremorTriggerMin:  80,
			RestingTriggerMin: 85,
		},
	}
}

// GapTolerance 两次采样之间允许的最大间隔
func (t Thresholds) GapTolerance() time.Duration {
	return 2 * t.ExpectedInterval
}
