package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wisefido-anxiety/internal/models"
	"wisefido-anxiety/internal/repository"
	"wisefido-anxiety/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAlertID = "7d9f2c1e-4b3a-4f6e-9a8b-2c1d0e9f8a7b"

// fakeAlertService 内存实现
type fakeAlertService struct {
	byID         map[string]*models.Alert
	getErr       error
	alerts       map[string][]models.Alert
	undelivered  []models.Alert
	confirmErr   error
	listErr      error
	lastConfirm  models.ConfirmationResponse
	lastLimit    int
	endedSession string
}

func (f *fakeAlertService) RecordConfirmation(_ context.Context, resp models.ConfirmationResponse) error {
	f.lastConfirm = resp
	return f.confirmErr
}

func (f *fakeAlertService) GetAlert(_ context.Context, alertID string) (*models.Alert, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.byID[alertID], nil
}

func (f *fakeAlertService) ListAlerts(_ context.Context, userID string, limit int) ([]models.Alert, error) {
	f.lastLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.alerts[userID], nil
}

func (f *fakeAlertService) ListUndeliveredAlerts(_ context.Context, limit int) ([]models.Alert, error) {
	f.lastLimit = limit
	return f.undelivered, nil
}

func (f *fakeAlertService) EndSession(deviceID, sessionID string) bool {
	if deviceID == "device-1" && sessionID == "session-1" {
		f.endedSession = deviceID + "/" + sessionID
		return true
	}
	return false
}

func newTestRouter(svc AlertService) *Router {
	router := NewRouter(zap.NewNop())
	router.RegisterAnxietyRoutes(NewAlertHandler(svc, zap.NewNop()))
	router.RegisterOpsRoutes()
	return router
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) Result[json.RawMessage] {
	t.Helper()
	var res Result[json.RawMessage]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestAlertHandler_RecordConfirmation(t *testing.T) {
	svc := &fakeAlertService{}
	router := newTestRouter(svc)

	rec := serve(router, http.MethodPost, "/anxiety/api/v1/alerts/"+testAlertID+"/response", `{"user_response":"yes","responded_at":"2025-03-01T08:01:00Z"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ResultSuccess, decodeResult(t, rec).Code)

	assert.Equal(t, testAlertID, svc.lastConfirm.AlertID)
	assert.Equal(t, models.ResponseYes, svc.lastConfirm.UserResponse)
	assert.Equal(t, time.Date(2025, 3, 1, 8, 1, 0, 0, time.UTC), svc.lastConfirm.RespondedAt.UTC())
}

func TestAlertHandler_RecordConfirmationErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		body   string
		status int
	}{
		{"bad body", nil, `{`, http.StatusBadRequest},
		{"invalid response", fmt.Errorf("%w: user_response", service.ErrInvalidConfirmation), `{"user_response":"maybe"}`, http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: alert-1", repository.ErrAlertNotFound), `{"user_response":"no"}`, http.StatusNotFound},
		{"already responded", fmt.Errorf("%w: yes", repository.ErrAlreadyResponded), `{"user_response":"no"}`, http.StatusConflict},
		{"storage failure", errors.New("db down"), `{"user_response":"no"}`, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&fakeAlertService{confirmErr: tc.err})
			rec := serve(router, http.MethodPost, "/anxiety/api/v1/alerts/"+testAlertID+"/response", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, ResultError, decodeResult(t, rec).Code)
		})
	}
}

func TestAlertHandler_RecordConfirmationMalformedID(t *testing.T) {
	svc := &fakeAlertService{}
	router := newTestRouter(svc)

	rec := serve(router, http.MethodPost, "/anxiety/api/v1/alerts/alert-1/response", `{"user_response":"yes"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ResultError, decodeResult(t, rec).Code)
	assert.Empty(t, svc.lastConfirm.AlertID)
}

func TestAlertHandler_GetAlert(t *testing.T) {
	svc := &fakeAlertService{byID: map[string]*models.Alert{
		testAlertID: {ID: testAlertID, UserID: "user-1", Severity: models.TierSevere, DeliveryStatus: models.DeliveryUndelivered},
	}}
	router := newTestRouter(svc)

	rec := serve(router, http.MethodGet, "/anxiety/api/v1/alerts/"+testAlertID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body Result[models.Alert]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, testAlertID, body.Result.ID)
	assert.Equal(t, models.TierSevere, body.Result.Severity)
	assert.Equal(t, models.DeliveryUndelivered, body.Result.DeliveryStatus)

	// 不存在
	rec = serve(router, http.MethodGet, "/anxiety/api/v1/alerts/0b6c1f7a-3d2e-4c5b-8a9f-1e2d3c4b5a69", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// 非 UUID
	rec = serve(router, http.MethodGet, "/anxiety/api/v1/alerts/alert-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ResultError, decodeResult(t, rec).Code)

	rec = serve(newTestRouter(&fakeAlertService{getErr: errors.New("db down")}), http.MethodGet, "/anxiety/api/v1/alerts/"+testAlertID, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAlertHandler_ListAlerts(t *testing.T) {
	svc := &fakeAlertService{alerts: map[string][]models.Alert{
		"user-1": {{ID: "alert-2", UserID: "user-1", Severity: models.TierSevere}, {ID: "alert-1", UserID: "user-1", Severity: models.TierMild}},
	}}
	router := newTestRouter(svc)

	rec := serve(router, http.MethodGet, "/anxiety/api/v1/users/user-1/alerts?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, svc.lastLimit)

	var body Result[struct {
		Items []models.Alert `json:"items"`
		Total int            `json:"total"`
	}]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Result.Total)
	assert.Equal(t, "alert-2", body.Result.Items[0].ID)
	assert.Equal(t, models.TierSevere, body.Result.Items[0].Severity)

	// 无报警返回空数组
	rec = serve(router, http.MethodGet, "/anxiety/api/v1/users/user-9/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[]`)
	assert.Equal(t, 50, svc.lastLimit)
}

func TestAlertHandler_ListAlertsError(t *testing.T) {
	router := newTestRouter(&fakeAlertService{listErr: errors.New("db down")})
	rec := serve(router, http.MethodGet, "/anxiety/api/v1/users/user-1/alerts", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAlertHandler_ListUndelivered(t *testing.T) {
	svc := &fakeAlertService{undelivered: []models.Alert{{ID: "alert-3", DeliveryStatus: models.DeliveryUndelivered}}}
	router := newTestRouter(svc)

	rec := serve(router, http.MethodGet, "/anxiety/api/v1/alerts/undelivered", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alert-3"`)
}

func TestAlertHandler_EndSession(t *testing.T) {
	svc := &fakeAlertService{}
	router := newTestRouter(svc)

	rec := serve(router, http.MethodDelete, "/anxiety/api/v1/devices/device-1/sessions/session-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "device-1/session-1", svc.endedSession)

	rec = serve(router, http.MethodDelete, "/anxiety/api/v1/devices/device-1/sessions/other", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertHandler_Routing(t *testing.T) {
	router := newTestRouter(&fakeAlertService{})

	assert.Equal(t, http.StatusMethodNotAllowed, serve(router, http.MethodGet, "/anxiety/api/v1/alerts/"+testAlertID+"/response", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(router, http.MethodPost, "/anxiety/api/v1/users/user-1/alerts", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(router, http.MethodDelete, "/anxiety/api/v1/alerts/"+testAlertID, "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/anxiety/api/v1/alerts/"+testAlertID+"/other", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodDelete, "/anxiety/api/v1/devices/device-1", "").Code)
}

func TestRouter_OpsRoutes(t *testing.T) {
	router := newTestRouter(&fakeAlertService{})

	rec := serve(router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = serve(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
