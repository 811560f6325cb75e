package evaluator

import (
	"testing"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestMovementIntensity(t *testing.T) {
	th := config.DefaultThresholds()

	assert.InDelta(t, 0, MovementIntensity(th, models.Vec3{Z: 9.8}), 1e-9)
	assert.InDelta(t, 20, MovementIntensity(th, models.Vec3{Z: 11.8}), 1e-9)
	// 低于重力同样计为偏离
	assert.InDelta(t, 30, MovementIntensity(th, models.Vec3{Z: 6.8}), 1e-9)
	// 上限 100
	assert.Equal(t, 100.0, MovementIntensity(th, models.Vec3{X: 30, Y: 30, Z: 30}))
}

func TestGyroActivity(t *testing.T) {
	th := config.DefaultThresholds()

	assert.InDelta(t, 50, GyroActivity(th, models.Vec3{X: 0.3, Y: 0.4}), 1e-9)
	assert.Equal(t, 100.0, GyroActivity(th, models.Vec3{X: 5}))
	assert.Equal(t, 0.0, GyroActivity(th, models.Vec3{}))
}

func TestClassifyMovement(t *testing.T) {
	th := config.DefaultThresholds()

	tests := []struct {
		name      string
		movement  float64
		gyro      float64
		hr        float64
		baseline  float64
		exercise  bool
		tremor    bool
		isResting bool
	}{
		{"exercise", 50, 20, 98, 70, true, false, false},
		{"exercise HR ratio too low", 50, 20, 80, 70, false, false, false},
		{"exercise HR ratio too high", 50, 20, 130, 70, false, false, false},
		{"exercise gyro too high", 50, 55, 98, 70, false, false, false},
		{"tremor", 18, 45, 91, 70, false, true, false},
		{"tremor movement too low", 4, 45, 91, 70, false, false, true},
		{"tremor with resting", 8, 45, 91, 70, false, true, true},
		{"resting", 5, 5, 90, 70, false, false, true},
		{"moving not exercising", 20, 10, 87.5, 70, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ClassifyMovement(th, accelFor(tt.movement), gyroFor(tt.gyro), tt.hr, tt.baseline)
			assert.Equal(t, tt.exercise, m.ExerciseDetected, "exercise")
			assert.Equal(t, tt.tremor, m.TremorDetected, "tremor")
			assert.Equal(t, tt.isResting, m.IsResting, "resting")
			assert.InDelta(t, tt.movement, m.MovementIntensity, 1e-6)
			assert.InDelta(t, tt.gyro, m.GyroActivity, 1e-6)
		})
	}
}

func TestClassifyMovement_MissingSensors(t *testing.T) {
	th := config.DefaultThresholds()

	m := ClassifyMovement(th, nil, nil, 98, 70)
	assert.False(t, m.HasAccel)
	assert.False(t, m.HasGyro)
	assert.False(t, m.ExerciseDetected)
	assert.False(t, m.TremorDetected)
	assert.False(t, m.IsResting)

	// 只有加速度计：可以判断静息，不判断运动和震颤
	m = ClassifyMovement(th, accelFor(50), nil, 98, 70)
	assert.True(t, m.HasAccel)
	assert.False(t, m.ExerciseDetected)
	assert.False(t, m.IsResting)

	m = ClassifyMovement(th, accelFor(3), nil, 98, 70)
	assert.True(t, m.IsResting)
}
