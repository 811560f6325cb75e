package evaluator

import (
	"testing"
	"time"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestDecide_PriorityOrder(t *testing.T) {
	th := config.DefaultThresholds()

	// 血氧覆盖优先于运动抑制
	d := Decide(th, PolicyInput{
		SpO2Override: true,
		Movement:     Movement{ExerciseDetected: true},
		InstantTier:  models.TierCritical,
	})
	assert.True(t, d.Trigger)
	assert.Equal(t, models.TierCritical, d.Severity)
	assert.Equal(t, 100, d.Confidence)
	assert.False(t, d.ConfirmationRequired)
	assert.Equal(t, RuleSpO2Override, d.Rule)

	// 运动抑制优先于持续规则
	d = Decide(th, PolicyInput{
		Movement:            Movement{ExerciseDetected: true},
		InstantTier:         models.TierSevere,
		InstantConfidence:   10,
		SustainedTier:       models.TierSevere,
		SustainedConfidence: 10,
		SustainedDuration:   2 * time.Minute,
	})
	assert.False(t, d.Trigger)
	assert.Equal(t, RuleExercise, d.Rule)

	// 震颤置信度不足且未持续：不触发
	d = Decide(th, PolicyInput{
		Movement:          Movement{TremorDetected: true},
		InstantTier:       models.TierMild,
		InstantConfidence: 79,
		SustainedTier:     models.TierMild,
		SustainedDuration: 10 * time.Second,
	})
	assert.False(t, d.Trigger)

	// elevated 不会单独触发
	d = Decide(th, PolicyInput{
		Movement:          Movement{TremorDetected: true},
		InstantTier:       models.TierElevated,
		InstantConfidence: 90,
	})
	assert.False(t, d.Trigger)

	// 静息焦虑需要心率超过基线 1.2 倍
	d = Decide(th, PolicyInput{
		Movement:          Movement{IsResting: true},
		HeartRate:         84,
		Baseline:          70,
		InstantTier:       models.TierMild,
		InstantConfidence: 95,
	})
	assert.False(t, d.Trigger)

	d = Decide(th, PolicyInput{
		Movement:          Movement{IsResting: true},
		HeartRate:         86,
		Baseline:          70,
		InstantTier:       models.TierMild,
		InstantConfidence: 95,
	})
	assert.True(t, d.Trigger)
	assert.Equal(t, RuleRestingAnxiety, d.Rule)
}

func TestDecide_ConfirmationByTier(t *testing.T) {
	th := config.DefaultThresholds()

	tests := []struct {
		tier    models.Tier
		confirm bool
	}{
		{models.TierMild, true},
		{models.TierModerate, true},
		{models.TierSevere, false},
		{models.TierCritical, false},
	}

	for _, tt := range tests {
		t.Run(tt.tier.String(), func(t *testing.T) {
			inputs := []PolicyInput{
				// 震颤
				{Movement: Movement{TremorDetected: true}, InstantTier: tt.tier, InstantConfidence: 90},
				// 静息
				{Movement: Movement{IsResting: true}, HeartRate: 100, Baseline: 70, InstantTier: tt.tier, InstantConfidence: 90},
				// 持续
				{SustainedTier: tt.tier, SustainedConfidence: 70, SustainedDuration: 30 * time.Second},
			}
			for _, in := range inputs {
				d := Decide(th, in)
				assert.True(t, d.Trigger)
				assert.Equal(t, tt.tier, d.Severity)
				assert.Equal(t, tt.confirm, d.ConfirmationRequired)
			}
		})
	}
}

func TestDecide_SustainedMinimum(t *testing.T) {
	th := config.DefaultThresholds()

	in := PolicyInput{SustainedTier: models.TierModerate, SustainedConfidence: 75}

	in.SustainedDuration = 29900 * time.Millisecond
	assert.False(t, Decide(th, in).Trigger)

	in.SustainedDuration = 30 * time.Second
	d := Decide(th, in)
	assert.True(t, d.Trigger)
	assert.Equal(t, RuleSustained, d.Rule)
	assert.Equal(t, 75, d.Confidence)

	in.SustainedTier = models.TierElevated
	assert.False(t, Decide(th, in).Trigger)
}
