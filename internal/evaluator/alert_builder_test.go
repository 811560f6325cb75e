package evaluator

import (
	"encoding/json"
	"testing"
	"time"

	"wisefido-anxiety/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertBuilder_BuildAlert(t *testing.T) {
	s := newSequence(t, 70)
	var res Result
	var r models.Reading
	for i := 0; i <= 6; i++ {
		r = newReading(time.Duration(i)*5*time.Second, 87.5, withMotion(20, 10), withSpO2(96))
		res = s.step(r)
	}
	require.True(t, res.Decision.Trigger)

	builder := NewAlertBuilder("user-1", "device-1")
	alert, err := builder.BuildAlert(r, 70, res, r.Timestamp)
	require.NoError(t, err)

	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, "user-1", alert.UserID)
	assert.Equal(t, "device-1", alert.DeviceID)
	assert.Equal(t, models.TierMild, alert.Severity)
	assert.Equal(t, 87.5, alert.HeartRate)
	assert.Equal(t, 70.0, alert.BaselineAtTime)
	assert.Equal(t, 70, alert.Confidence)
	assert.True(t, alert.ConfirmationRequired)
	assert.Equal(t, r.Timestamp, alert.Timestamp)
	assert.Equal(t, "sustained", alert.Rule)
	assert.Equal(t, models.DeliveryPending, alert.DeliveryStatus)
	assert.Equal(t, "user-1:mild:1740816030000", alert.DedupKey)

	// 验证 trigger_data 序列化
	var td models.TriggerData
	require.NoError(t, json.Unmarshal(alert.TriggerData, &td))
	assert.Equal(t, 25.0, td.PercentageAbove)
	require.NotNil(t, td.DurationSec)
	assert.Equal(t, 30.0, *td.DurationSec)
	require.NotNil(t, td.SpO2)
	assert.Equal(t, 96.0, *td.SpO2)
	require.NotNil(t, td.MovementIntensity)
	assert.InDelta(t, 20, *td.MovementIntensity, 1e-6)
	assert.Equal(t, "session-1", td.SessionID)
}

func TestAlertBuilder_RejectsNonTrigger(t *testing.T) {
	builder := NewAlertBuilder("user-1", "device-1")
	_, err := builder.BuildAlert(newReading(0, 80), 70, Result{}, t0)
	assert.Error(t, err)
}

func TestPercentageAbove(t *testing.T) {
	assert.Equal(t, 30.0, PercentageAbove(91, 70))
	assert.Equal(t, 22.2, PercentageAbove(90.3, 73.9))
	assert.Equal(t, -10.0, PercentageAbove(63, 70))
	assert.Equal(t, 0.0, PercentageAbove(80, 0))
}
