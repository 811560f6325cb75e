package evaluator

import (
	"testing"
	"time"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"
	"wisefido-anxiety/internal/window"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func floatPtr(v float64) *float64 {
	return &v
}

// accelFor 构造指定运动强度的加速度向量
func accelFor(intensity float64) *models.Vec3 {
	return &models.Vec3{Z: 9.8 + intensity/10}
}

// gyroFor 构造指定陀螺仪活动度的角速度向量
func gyroFor(activity float64) *models.Vec3 {
	return &models.Vec3{Z: activity / 100}
}

type readingOpt func(*models.Reading)

func withSpO2(v float64) readingOpt {
	return func(r *models.Reading) { r.SpO2 = floatPtr(v) }
}

func withMotion(movement, gyro float64) readingOpt {
	return func(r *models.Reading) {
		r.Accel = accelFor(movement)
		r.Gyro = gyroFor(gyro)
	}
}

func newReading(offset time.Duration, hr float64, opts ...readingOpt) models.Reading {
	r := models.Reading{
		Timestamp: t0.Add(offset),
		HeartRate: floatPtr(hr),
		DeviceID:  "device-1",
		SessionID: "session-1",
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// sequence 模拟单个用户的连续评估（窗口 + 状态回写）
type sequence struct {
	t        *testing.T
	e        *Evaluator
	win      *window.Manager
	state    models.AnomalyState
	baseline float64
}

func newSequence(t *testing.T, baseline float64) *sequence {
	return &sequence{
		t:        t,
		e:        NewEvaluator(config.DefaultThresholds()),
		win:      window.NewManager(120*time.Second, 10*time.Minute),
		baseline: baseline,
	}
}

func (s *sequence) step(r models.Reading) Result {
	s.t.Helper()
	require.NoError(s.t, s.win.Append(r))

	res, err := s.e.Evaluate(Input{
		UserID:         "user-1",
		Reading:        r,
		Baseline:       s.baseline,
		ContiguousSpan: s.win.ContiguousSpan(r.DeviceID, s.e.Thresholds().GapTolerance()),
	}, s.state)
	require.NoError(s.t, err)

	s.state = res.State
	return res
}
