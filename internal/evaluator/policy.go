package evaluator

import (
	"time"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"
)

// Rule 触发规则
type Rule string

const (
	RuleNone           Rule = ""
	RuleSpO2Override   Rule = "spo2_override"
	RuleExercise       Rule = "exercise_suppressed"
	RuleTremor         Rule = "tremor"
	RuleRestingAnxiety Rule = "resting_anxiety"
	RuleSustained      Rule = "sustained"
)

// Decision 报警决策
type Decision struct {
	Trigger              bool        `json:"trigger"`
	Severity             models.Tier `json:"severity"`
	Confidence           int         `json:"confidence"`
	ConfirmationRequired bool        `json:"confirmation_required"`
	Rule                 Rule        `json:"rule,omitempty"`
}

// PolicyInput 决策输入
type PolicyInput struct {
	SpO2Override bool
	Movement     Movement
	HeartRate    float64
	Baseline     float64

	InstantTier       models.Tier
	InstantConfidence int

	SustainedTier       models.Tier
	SustainedConfidence int
	SustainedDuration   time.Duration
}

// Decide 按优先级匹配，第一条命中的规则生效
func Decide(th config.Thresholds, in PolicyInput) Decision {
	// 1. 血氧过低：直接 critical，无需确认
	if in.SpO2Override {
		return Decision{
			Trigger:    true,
			Severity:   models.TierCritical,
			Confidence: th.Confidence.CriticalSpO2,
			Rule:       RuleSpO2Override,
		}
	}

	// 2. 运动模式：抑制
	if in.Movement.ExerciseDetected {
		return Decision{Severity: in.InstantTier, Confidence: in.InstantConfidence, Rule: RuleExercise}
	}

	// 3. 震颤
	if in.Movement.TremorDetected && in.InstantTier.IsAlertable() &&
		in.InstantConfidence >= th.Confidence.TremorTriggerMin {
		return trigger(in.InstantTier, in.InstantConfidence, RuleTremor)
	}

	// 4. 静息焦虑
	if in.Movement.IsResting && in.InstantTier.IsAlertable() &&
		in.HeartRate > in.Baseline*th.RestingHRRatio &&
		in.InstantConfidence >= th.Confidence.RestingTriggerMin {
		return trigger(in.InstantTier, in.InstantConfidence, RuleRestingAnxiety)
	}

	// 5. 持续
	if in.SustainedTier.IsAlertable() && in.SustainedDuration >= th.SustainedMinDuration {
		return trigger(in.SustainedTier, in.SustainedConfidence, RuleSustained)
	}

	return Decision{Severity: in.InstantTier, Confidence: in.InstantConfidence}
}

func trigger(tier models.Tier, confidence int, rule Rule) Decision {
	return Decision{
		Trigger:              true,
		Severity:             tier,
		Confidence:           confidence,
		ConfirmationRequired: tier.RequiresConfirmation(),
		Rule:                 rule,
	}
}
