package evaluator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"
)

var (
	// ErrMalformedReading 读数缺少心率或数值越界（丢弃，不影响窗口和状态）
	ErrMalformedReading = errors.New("malformed reading")
	// ErrInvalidBaseline 基线必须为正数
	ErrInvalidBaseline = errors.New("invalid baseline")
)

// 合法数值范围
const (
	minHeartRate = 20
	maxHeartRate = 250
	minSpO2      = 50
	maxSpO2      = 100
)

// Input 单次评估输入
type Input struct {
	UserID   string
	Reading  models.Reading
	Baseline float64

	// ContiguousSpan 会话窗口中以本次读数结尾、无断档的连续时长
	// 持续时长以它为上限，窗口无法证明的时长不计入
	ContiguousSpan time.Duration
}

// Result 单次评估结果
type Result struct {
	Instant           Severity
	SustainedTier     models.Tier
	SustainedDuration time.Duration
	Movement          Movement
	Flags             []string
	State             models.AnomalyState // 评估后的新状态
	Decision          Decision
}

// Evaluator 焦虑评估器（纯函数，无 I/O）
type Evaluator struct {
	thresholds config.Thresholds
}

// NewEvaluator 创建评估器
func NewEvaluator(th config.Thresholds) *Evaluator {
	return &Evaluator{thresholds: th}
}

// Thresholds 当前阈值
func (e *Evaluator) Thresholds() config.Thresholds {
	return e.thresholds
}

// Validate 校验读数
func Validate(r models.Reading) error {
	if r.DeviceID == "" {
		return fmt.Errorf("%w: missing device_id", ErrMalformedReading)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrMalformedReading)
	}
	if r.HeartRate == nil {
		return fmt.Errorf("%w: missing heart_rate", ErrMalformedReading)
	}
	if hr := *r.HeartRate; math.IsNaN(hr) || hr < minHeartRate || hr > maxHeartRate {
		return fmt.Errorf("%w: heart_rate %v out of range", ErrMalformedReading, hr)
	}
	if r.SpO2 != nil {
		if s := *r.SpO2; math.IsNaN(s) || s < minSpO2 || s > maxSpO2 {
			return fmt.Errorf("%w: spo2 %v out of range", ErrMalformedReading, s)
		}
	}
	if r.Accel != nil && !r.Accel.IsFinite() {
		return fmt.Errorf("%w: accel not finite", ErrMalformedReading)
	}
	if r.Gyro != nil && !r.Gyro.IsFinite() {
		return fmt.Errorf("%w: gyro not finite", ErrMalformedReading)
	}
	return nil
}

// Evaluate 评估一条读数
// state 为该用户当前的持续状态（首次为零值），返回值中的 State 需由调用方写回
func (e *Evaluator) Evaluate(in Input, state models.AnomalyState) (Result, error) {
	if err := Validate(in.Reading); err != nil {
		return Result{}, err
	}
	if in.Baseline <= 0 || math.IsNaN(in.Baseline) {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidBaseline, in.Baseline)
	}

	th := e.thresholds
	r := in.Reading
	hr := *r.HeartRate

	// 1. 运动分类与即时等级（互不依赖）
	mv := ClassifyMovement(th, r.Accel, r.Gyro, hr, in.Baseline)
	instant := InstantSeverity(th, hr, in.Baseline, r.SpO2)

	// 2. 持续状态
	sustainedTier := RatioTier(th, hr, in.Baseline)
	next, duration := Track(state, in.UserID, sustainedTier, r.Timestamp, th.GapTolerance())
	if duration > in.ContiguousSpan {
		duration = in.ContiguousSpan
	}

	// 3. 置信度
	instantConf := Confidence(th, ConfidenceInput{
		Tier:         instant.Tier,
		SpO2Override: instant.SpO2Override,
		Movement:     mv,
		HeartRate:    hr,
		Baseline:     in.Baseline,
		SpO2:         r.SpO2,
	})
	sustainedConf := Confidence(th, ConfidenceInput{
		Tier:      sustainedTier,
		Movement:  mv,
		HeartRate: hr,
		Baseline:  in.Baseline,
		SpO2:      r.SpO2,
	})

	// 4. 决策
	decision := Decide(th, PolicyInput{
		SpO2Override:        instant.SpO2Override,
		Movement:            mv,
		HeartRate:           hr,
		Baseline:            in.Baseline,
		InstantTier:         instant.Tier,
		InstantConfidence:   instantConf,
		SustainedTier:       sustainedTier,
		SustainedConfidence: sustainedConf,
		SustainedDuration:   duration,
	})

	return Result{
		Instant:           instant,
		SustainedTier:     sustainedTier,
		SustainedDuration: duration,
		Movement:          mv,
		Flags:             collectFlags(th, instant, mv, hr, in.Baseline),
		State:             next,
		Decision:          decision,
	}, nil
}

func collectFlags(th config.Thresholds, s Severity, mv Movement, hr, baseline float64) []string {
	flags := append([]string(nil), s.Flags...)
	if mv.ExerciseDetected {
		flags = append(flags, FlagExercise)
	}
	if mv.TremorDetected {
		flags = append(flags, FlagTremor)
	}
	if mv.IsResting {
		flags = append(flags, FlagResting)
	}
	if mv.HasGyro && mv.GyroActivity > th.TremorGyroMin {
		flags = append(flags, FlagGyroActivity)
	}
	if HRElevationRatio(hr, baseline) >= th.VeryHighHRRatio {
		flags = append(flags, FlagVeryHighHR)
	}
	return flags
}
