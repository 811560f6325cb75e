package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"wisefido-anxiety/internal/models"
	"wisefido-anxiety/internal/repository"
	"wisefido-anxiety/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	alertsPrefix  = "/anxiety/api/v1/alerts/"
	usersPrefix   = "/anxiety/api/v1/users/"
	devicesPrefix = "/anxiety/api/v1/devices/"
)

// AlertService 报警接口（service.Engine 实现）
type AlertService interface {
	RecordConfirmation(ctx context.Context, resp models.ConfirmationResponse) error
	GetAlert(ctx context.Context, alertID string) (*models.Alert, error)
	ListAlerts(ctx context.Context, userID string, limit int) ([]models.Alert, error)
	ListUndeliveredAlerts(ctx context.Context, limit int) ([]models.Alert, error)
	EndSession(deviceID, sessionID string) bool
}

// AlertHandler 报警 Handler
type AlertHandler struct {
	svc    AlertService
	logger *zap.Logger
}

// NewAlertHandler 创建报警 Handler
func NewAlertHandler(svc AlertService, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{svc: svc, logger: logger}
}

// confirmationRequest 确认回复请求体
type confirmationRequest struct {
	UserResponse models.UserResponse `json:"user_response"`
	RespondedAt  *time.Time          `json:"responded_at,omitempty"`
}

// ServeHTTP 实现 http.Handler 接口
func (h *AlertHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 路由分发
	path := r.URL.Path
	switch {
	// ListUndeliveredAlerts
	case path == alertsPrefix+"undelivered":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ListUndeliveredAlerts(w, r)
	// RecordConfirmation
	case strings.HasPrefix(path, alertsPrefix) && strings.HasSuffix(path, "/response"):
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		alertID := strings.TrimSuffix(strings.TrimPrefix(path, alertsPrefix), "/response")
		if alertID == "" || strings.Contains(alertID, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.RecordConfirmation(w, r, alertID)
	// GetAlert: /alerts/{alertId}
	case strings.HasPrefix(path, alertsPrefix) && !strings.Contains(strings.TrimPrefix(path, alertsPrefix), "/"):
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		alertID := strings.TrimPrefix(path, alertsPrefix)
		if alertID == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.GetAlert(w, r, alertID)
	// ListAlerts
	case strings.HasPrefix(path, usersPrefix) && strings.HasSuffix(path, "/alerts"):
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		userID := strings.TrimSuffix(strings.TrimPrefix(path, usersPrefix), "/alerts")
		if userID == "" || strings.Contains(userID, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.ListAlerts(w, r, userID)
	// EndSession: /devices/{deviceId}/sessions/{sessionId}
	case strings.HasPrefix(path, devicesPrefix):
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		parts := strings.Split(strings.TrimPrefix(path, devicesPrefix), "/")
		if len(parts) != 3 || parts[0] == "" || parts[1] != "sessions" || parts[2] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.EndSession(w, r, parts[0], parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// RecordConfirmation 记录用户对确认提示的回复
func (h *AlertHandler) RecordConfirmation(w http.ResponseWriter, r *http.Request, alertID string) {
	if !validAlertID(alertID) {
		writeJSON(w, http.StatusNotFound, Fail("alert not found"))
		return
	}

	var req confirmationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	resp := models.ConfirmationResponse{
		AlertID:      alertID,
		UserResponse: req.UserResponse,
	}
	if req.RespondedAt != nil {
		resp.RespondedAt = *req.RespondedAt
	}

	if err := h.svc.RecordConfirmation(r.Context(), resp); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidConfirmation):
			writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		case errors.Is(err, repository.ErrAlertNotFound):
			writeJSON(w, http.StatusNotFound, Fail("alert not found"))
		case errors.Is(err, repository.ErrAlreadyResponded):
			writeJSON(w, http.StatusConflict, Fail("alert already responded"))
		default:
			h.logger.Error("Failed to record confirmation",
				zap.String("alert_id", alertID),
				zap.Error(err),
			)
			writeJSON(w, http.StatusInternalServerError, Fail("failed to record confirmation"))
		}
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"alert_id":      alertID,
		"user_response": req.UserResponse,
	}))
}

// GetAlert 查询单条报警（含投递状态与用户回复）
func (h *AlertHandler) GetAlert(w http.ResponseWriter, r *http.Request, alertID string) {
	if !validAlertID(alertID) {
		writeJSON(w, http.StatusNotFound, Fail("alert not found"))
		return
	}

	alert, err := h.svc.GetAlert(r.Context(), alertID)
	if err != nil {
		h.logger.Error("Failed to get alert",
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to get alert"))
		return
	}
	if alert == nil {
		writeJSON(w, http.StatusNotFound, Fail("alert not found"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(alert))
}

// ListAlerts 查询用户报警历史（按时间倒序）
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request, userID string) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)

	alerts, err := h.svc.ListAlerts(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("Failed to list alerts",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list alerts"))
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": alerts,
		"total": len(alerts),
	}))
}

// ListUndeliveredAlerts 查询投递失败的报警
func (h *AlertHandler) ListUndeliveredAlerts(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)

	alerts, err := h.svc.ListUndeliveredAlerts(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list undelivered alerts", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list undelivered alerts"))
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": alerts,
		"total": len(alerts),
	}))
}

// EndSession 结束设备会话
func (h *AlertHandler) EndSession(w http.ResponseWriter, r *http.Request, deviceID, sessionID string) {
	if !h.svc.EndSession(deviceID, sessionID) {
		writeJSON(w, http.StatusNotFound, Fail("session not found"))
		return
	}
	h.logger.Info("Session ended",
		zap.String("device_id", deviceID),
		zap.String("session_id", sessionID),
	)
	writeJSON(w, http.StatusOK, Ok(map[string]string{
		"device_id":  deviceID,
		"session_id": sessionID,
	}))
}

// validAlertID alert_id 为 UUID
func validAlertID(alertID string) bool {
	_, err := uuid.Parse(alertID)
	return err == nil
}
