package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"wisefido-anxiety/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockAlertDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AlertRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewAlertRepository(db, zap.NewNop())
	return db, mock, repo
}

var alertRowColumns = []string{
	"alert_id", "user_id", "device_id", "severity", "heart_rate", "baseline_at_time",
	"confidence", "confirmation_required", "triggered_at", "dedup_key", "rule",
	"delivery_status", "user_response", "responded_at", "trigger_data", "created_at",
}

func TestCreateAlert_Success(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	now := time.Now()
	td, _ := json.Marshal(models.TriggerData{PercentageAbove: 25, SessionID: "s1"})
	alert := &models.Alert{
		ID:                   uuid.New().String(),
		UserID:               "user-1",
		DeviceID:             "device-1",
		Severity:             models.TierMild,
		HeartRate:            87.5,
		BaselineAtTime:       70,
		Confidence:           70,
		ConfirmationRequired: true,
		Timestamp:            now,
		DedupKey:             "user-1:mild:1",
		Rule:                 "sustained",
		DeliveryStatus:       models.DeliveryPending,
		TriggerData:          td,
		CreatedAt:            now,
	}

	mock.ExpectExec(`INSERT INTO anxiety_alerts`).
		WithArgs(alert.ID, "user-1", "device-1", "mild", 87.5, 70.0, 70, true, now,
			"user-1:mild:1", "sustained", "pending", []byte(td), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateAlert(context.Background(), alert))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlert_Validation(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	assert.Error(t, repo.CreateAlert(context.Background(), nil))
	err := repo.CreateAlert(context.Background(), &models.Alert{UserID: "user-1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "alert_id and user_id are required")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDeliveryStatus(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE anxiety_alerts\s+SET delivery_status`).
		WithArgs("alert-1", "undelivered").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE anxiety_alerts\s+SET delivery_status`).
		WithArgs("alert-2", "delivered").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdateDeliveryStatus(context.Background(), "alert-1", models.DeliveryUndelivered))
	err := repo.UpdateDeliveryStatus(context.Background(), "alert-2", models.DeliveryDelivered)
	assert.ErrorIs(t, err, ErrAlertNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSuppression(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	at := time.Now()
	mock.ExpectExec(`INSERT INTO anxiety_alert_suppressions`).
		WithArgs("user-1", "moderate", "tremor", 96.0, 90, "user-1:moderate:1", at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.RecordSuppression(context.Background(), &models.SuppressedTrigger{
		UserID:       "user-1",
		Severity:     models.TierModerate,
		Rule:         "tremor",
		HeartRate:    96,
		Confidence:   90,
		DedupKey:     "user-1:moderate:1",
		SuppressedAt: at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordConfirmation(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()
	ctx := context.Background()
	at := time.Now()
	alertID := uuid.New().String()
	missingID := uuid.New().String()

	// 首次回复
	mock.ExpectExec(`UPDATE anxiety_alerts\s+SET user_response`).
		WithArgs(alertID, "yes", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.RecordConfirmation(ctx, models.ConfirmationResponse{
		AlertID: alertID, UserResponse: models.ResponseYes, RespondedAt: at,
	}))

	// 不同回复
	mock.ExpectExec(`UPDATE anxiety_alerts\s+SET user_response`).
		WithArgs(alertID, "no", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT user_response FROM anxiety_alerts`).
		WithArgs(alertID).
		WillReturnRows(sqlmock.NewRows([]string{"user_response"}).AddRow("yes"))
	err := repo.RecordConfirmation(ctx, models.ConfirmationResponse{
		AlertID: alertID, UserResponse: models.ResponseNo, RespondedAt: at,
	})
	assert.ErrorIs(t, err, ErrAlreadyResponded)

	// 不存在
	mock.ExpectExec(`UPDATE anxiety_alerts\s+SET user_response`).
		WithArgs(missingID, "dismissed", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT user_response FROM anxiety_alerts`).
		WithArgs(missingID).
		WillReturnError(sql.ErrNoRows)
	err = repo.RecordConfirmation(ctx, models.ConfirmationResponse{
		AlertID: missingID, UserResponse: models.ResponseDismissed, RespondedAt: at,
	})
	assert.ErrorIs(t, err, ErrAlertNotFound)

	// 非法回复不访问数据库
	err = repo.RecordConfirmation(ctx, models.ConfirmationResponse{AlertID: alertID, UserResponse: "maybe"})
	assert.Error(t, err)

	// 非 UUID 的 alert_id 不访问数据库
	err = repo.RecordConfirmation(ctx, models.ConfirmationResponse{AlertID: "alert-1", UserResponse: models.ResponseYes, RespondedAt: at})
	assert.ErrorIs(t, err, ErrAlertNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAlertsByUser(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(alertRowColumns).
		AddRow("alert-2", "user-1", "device-1", "severe", 110.0, 70.0, 100, false, now,
			"user-1:severe:2", "sustained", "delivered", nil, nil, []byte(`{"percentage_above":57.1}`), now).
		AddRow("alert-1", "user-1", "device-1", "mild", 87.5, 70.0, 70, true, now.Add(-time.Hour),
			"user-1:mild:1", "sustained", "delivered", "yes", now, []byte(`{}`), now)

	mock.ExpectQuery(`FROM anxiety_alerts\s+WHERE user_id = \$1\s+ORDER BY triggered_at DESC`).
		WithArgs("user-1", 50).
		WillReturnRows(rows)

	alerts, err := repo.ListAlertsByUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	assert.Equal(t, models.TierSevere, alerts[0].Severity)
	assert.False(t, alerts[0].ConfirmationRequired)
	assert.Nil(t, alerts[0].UserResponse)
	assert.JSONEq(t, `{"percentage_above":57.1}`, string(alerts[0].TriggerData))

	assert.Equal(t, models.TierMild, alerts[1].Severity)
	require.NotNil(t, alerts[1].UserResponse)
	assert.Equal(t, models.ResponseYes, *alerts[1].UserResponse)
	assert.NotNil(t, alerts[1].RespondedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListUndeliveredAlerts(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`WHERE delivery_status = \$1`).
		WithArgs("undelivered", 500).
		WillReturnRows(sqlmock.NewRows(alertRowColumns).
			AddRow("alert-1", "user-1", "device-1", "critical", 72.0, 70.0, 100, false, now,
				"user-1:critical:1", "spo2_override", "undelivered", nil, nil, []byte(`{}`), now))

	alerts, err := repo.ListUndeliveredAlerts(context.Background(), 10000)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.DeliveryUndelivered, alerts[0].DeliveryStatus)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAlert(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()
	ctx := context.Background()

	foundID := uuid.New().String()
	missingID := uuid.New().String()
	brokenID := uuid.New().String()
	now := time.Now()

	mock.ExpectQuery(`FROM anxiety_alerts WHERE alert_id = \$1`).
		WithArgs(foundID).
		WillReturnRows(sqlmock.NewRows(alertRowColumns).
			AddRow(foundID, "user-1", "device-1", "moderate", 100.0, 70.0, 90, true, now,
				"user-1:moderate:1", "sustained", "pending", nil, nil, []byte(`{}`), now))
	mock.ExpectQuery(`FROM anxiety_alerts WHERE alert_id = \$1`).
		WithArgs(missingID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM anxiety_alerts WHERE alert_id = \$1`).
		WithArgs(brokenID).
		WillReturnError(errors.New("boom"))

	a, err := repo.GetAlert(ctx, foundID)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, foundID, a.ID)
	assert.Equal(t, models.TierModerate, a.Severity)
	assert.True(t, a.ConfirmationRequired)

	a, err = repo.GetAlert(ctx, missingID)
	assert.NoError(t, err)
	assert.Nil(t, a)

	_, err = repo.GetAlert(ctx, brokenID)
	assert.Error(t, err)

	// 非 UUID 不访问数据库
	a, err = repo.GetAlert(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, a)

	require.NoError(t, mock.ExpectationsWereMet())
}
