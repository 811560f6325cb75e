package evaluator

import (
	"testing"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestConfidence(t *testing.T) {
	th := config.DefaultThresholds()

	still := Movement{HasAccel: true, HasGyro: true, MovementIntensity: 20, GyroActivity: 10}

	tests := []struct {
		name string
		in   ConfidenceInput
		want int
	}{
		{
			name: "normal tier",
			in:   ConfidenceInput{Tier: models.TierNormal, Movement: still, HeartRate: 72, Baseline: 70},
			want: 0,
		},
		{
			name: "elevated base",
			in:   ConfidenceInput{Tier: models.TierElevated, Movement: still, HeartRate: 82, Baseline: 70},
			want: 60,
		},
		{
			name: "mild base",
			in:   ConfidenceInput{Tier: models.TierMild, Movement: still, HeartRate: 87, Baseline: 70},
			want: 70,
		},
		{
			name: "moderate base",
			in:   ConfidenceInput{Tier: models.TierModerate, Movement: still, HeartRate: 90, Baseline: 70},
			want: 75,
		},
		{
			name: "severe with very high HR",
			in:   ConfidenceInput{Tier: models.TierSevere, Movement: still, HeartRate: 106, Baseline: 70},
			want: 100,
		},
		{
			name: "resting boost",
			in: ConfidenceInput{
				Tier:      models.TierMild,
				Movement:  Movement{HasAccel: true, HasGyro: true, MovementIntensity: 5, IsResting: true},
				HeartRate: 90.3,
				Baseline:  73.9,
			},
			want: 95,
		},
		{
			name: "resting without high HR gets no boost",
			in: ConfidenceInput{
				Tier:      models.TierMild,
				Movement:  Movement{HasAccel: true, HasGyro: true, MovementIntensity: 5, IsResting: true},
				HeartRate: 115,
				Baseline:  100,
			},
			want: 70,
		},
		{
			name: "low spo2 corroborates",
			in:   ConfidenceInput{Tier: models.TierMild, Movement: still, HeartRate: 87, Baseline: 70, SpO2: floatPtr(92)},
			want: 80,
		},
		{
			name: "tremor with gyro corroboration",
			in: ConfidenceInput{
				Tier:      models.TierMild,
				Movement:  Movement{HasAccel: true, HasGyro: true, MovementIntensity: 18, GyroActivity: 45, TremorDetected: true},
				HeartRate: 87,
				Baseline:  70,
			},
			want: 90,
		},
		{
			name: "exercise overrides boosts",
			in: ConfidenceInput{
				Tier:      models.TierSevere,
				Movement:  Movement{HasAccel: true, HasGyro: true, MovementIntensity: 50, GyroActivity: 20, ExerciseDetected: true},
				HeartRate: 110,
				Baseline:  70,
				SpO2:      floatPtr(92),
			},
			want: 10,
		},
		{
			name: "spo2 override always wins",
			in: ConfidenceInput{
				Tier:         models.TierCritical,
				SpO2Override: true,
				Movement:     Movement{ExerciseDetected: true},
				HeartRate:    98,
				Baseline:     70,
			},
			want: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Confidence(th, tt.in))
		})
	}
}

func TestConfidence_Capped(t *testing.T) {
	th := config.DefaultThresholds()

	got := Confidence(th, ConfidenceInput{
		Tier: models.TierSevere,
		Movement: Movement{
			HasAccel: true, HasGyro: true,
			MovementIntensity: 8, GyroActivity: 60,
			TremorDetected: true, IsResting: true,
		},
		HeartRate: 120,
		Baseline:  70,
		SpO2:      floatPtr(91),
	})
	assert.Equal(t, 100, got)
}
