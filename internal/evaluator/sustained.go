package evaluator

import (
	"time"

	"wisefido-anxiety/internal/models"
)

// Track 持续状态机：返回新状态和当前等级已持续的时长
//   - 等级为 normal：清零
//   - 等级变化：从本次读数重新计时
//   - 等级不变但与上次读数间隔超过 gapTolerance：断档，重新计时
//
// 传入的 state 不会被修改
func Track(state models.AnomalyState, userID string, tier models.Tier, ts time.Time, gapTolerance time.Duration) (models.AnomalyState, time.Duration) {
	next := state
	next.UserID = userID
	next.LastReadingTimestamp = ts

	if tier == models.TierNormal {
		next.Tier = models.TierNormal
		next.TierSinceTimestamp = ts
		return next, 0
	}

	gap := ts.Sub(state.LastReadingTimestamp)
	if tier != state.Tier || state.LastReadingTimestamp.IsZero() || state.TierSinceTimestamp.IsZero() || gap > gapTolerance {
		next.Tier = tier
		next.TierSinceTimestamp = ts
		return next, 0
	}

	return next, ts.Sub(state.TierSinceTimestamp)
}
