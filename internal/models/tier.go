package models

import (
	"encoding/json"
	"fmt"
)

// Tier 严重等级（按严重程度递增，可直接比较大小）
type Tier int

const (
	TierNormal Tier = iota
	TierElevated
	TierMild
	TierModerate
	TierSevere
	TierCritical
)

var tierNames = [...]string{"normal", "elevated", "mild", "moderate", "severe", "critical"}

func (t Tier) String() string {
	if t < TierNormal || t > TierCritical {
		return "unknown"
	}
	return tierNames[t]
}

// ParseTier 解析等级名称
func ParseTier(s string) (Tier, error) {
	for i, name := range tierNames {
		if name == s {
			return Tier(i), nil
		}
	}
	return TierNormal, fmt.Errorf("unknown tier: %q", s)
}

// RequiresConfirmation mild / moderate 需要用户确认；severe / critical 直接通知
func (t Tier) RequiresConfirmation() bool {
	return t == TierMild || t == TierModerate
}

// IsAlertable mild 及以上才可能单独触发报警（elevated 仅提示）
func (t Tier) IsAlertable() bool {
	return t >= TierMild
}

func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// AllTiers 所有等级（从低到高）
func AllTiers() []Tier {
	return []Tier{TierNormal, TierElevated, TierMild, TierModerate, TierSevere, TierCritical}
}
