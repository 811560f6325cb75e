package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/evaluator"
	"wisefido-anxiety/internal/metrics"
	"wisefido-anxiety/internal/models"
	"wisefido-anxiety/internal/notifier"
	"wisefido-anxiety/internal/store"
	"wisefido-anxiety/internal/window"

	"go.uber.org/zap"
)

// ErrInvalidConfirmation 确认回复缺少 alert_id 或回复值非法
var ErrInvalidConfirmation = errors.New("invalid confirmation")

// OutcomeKind 单条读数的处理结果
type OutcomeKind string

const (
	OutcomeDropped           OutcomeKind = "dropped"            // 读数非法或乱序
	OutcomeDetectionDisabled OutcomeKind = "detection_disabled" // 没有有效基线
	OutcomeNoTrigger         OutcomeKind = "no_trigger"
	OutcomeTriggered         OutcomeKind = "triggered"
	OutcomeRateLimited       OutcomeKind = "rate_limited"
	OutcomeSkippedConflict   OutcomeKind = "skipped_conflict" // 状态 CAS 重试耗尽
)

// Outcome 处理结果
type Outcome struct {
	Kind     OutcomeKind
	DeviceID string
	UserID   string
	Reason   string
	Decision evaluator.Decision
	Alert    *models.Alert // 仅 triggered
	DedupKey string        // triggered 为新窗口，rate_limited 为正在生效的窗口
}

// BaselineResolver 基线解析接口（repository.BaselineResolver 实现）
type BaselineResolver interface {
	Resolve(ctx context.Context, deviceID string) (*models.Baseline, error)
}

// AlertStore 报警持久化接口（repository.AlertRepository 实现）
type AlertStore interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
	UpdateDeliveryStatus(ctx context.Context, alertID string, status models.DeliveryStatus) error
	RecordSuppression(ctx context.Context, s *models.SuppressedTrigger) error
	RecordConfirmation(ctx context.Context, resp models.ConfirmationResponse) error
	GetAlert(ctx context.Context, alertID string) (*models.Alert, error)
	ListAlertsByUser(ctx context.Context, userID string, limit int) ([]models.Alert, error)
	ListUndeliveredAlerts(ctx context.Context, limit int) ([]models.Alert, error)
}

// Dispatcher 通知投递接口（notifier.Dispatcher 实现）
type Dispatcher interface {
	Dispatch(ctx context.Context, payload *models.NotificationPayload) error
	Channel() string
}

// Engine 读数处理流水线：校验 → 基线 → 窗口 → 评估 + 状态 CAS → 冷却 → 报警 → 投递
type Engine struct {
	cfg        *config.Config
	evaluator  *evaluator.Evaluator
	resolver   BaselineResolver
	windows    *window.Manager
	states     store.StateStore
	limiter    store.RateLimiter
	alerts     AlertStore
	dispatcher Dispatcher
	logger     *zap.Logger

	// 投递在后台进行，Wait 等待全部完成
	deliveries sync.WaitGroup
	now        func() time.Time
}

// NewEngine 创建处理引擎
func NewEngine(
	cfg *config.Config,
	resolver BaselineResolver,
	windows *window.Manager,
	states store.StateStore,
	limiter store.RateLimiter,
	alerts AlertStore,
	dispatcher Dispatcher,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		cfg:        cfg,
		evaluator:  evaluator.NewEvaluator(cfg.Anxiety.Thresholds),
		resolver:   resolver,
		windows:    windows,
		states:     states,
		limiter:    limiter,
		alerts:     alerts,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// HandleReading 处理一条读数
// 同一设备的读数必须串行调用（由 worker pool 按设备分片保证）
// 返回 error 仅表示基础设施故障（数据库、Redis），业务结果都在 Outcome 中
func (e *Engine) HandleReading(ctx context.Context, r models.Reading) (*Outcome, error) {
	start := e.now()
	defer func() {
		metrics.EvaluationDuration.Observe(e.now().Sub(start).Seconds())
	}()

	out, err := e.handle(ctx, r)
	if err != nil {
		metrics.ReadingsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ReadingsTotal.WithLabelValues(string(out.Kind)).Inc()
	return out, nil
}

func (e *Engine) handle(ctx context.Context, r models.Reading) (*Outcome, error) {
	out := &Outcome{DeviceID: r.DeviceID}

	// 1. 校验读数
	if err := evaluator.Validate(r); err != nil {
		e.logger.Warn("Dropping malformed reading",
			zap.String("device_id", r.DeviceID),
			zap.Error(err),
		)
		out.Kind = OutcomeDropped
		out.Reason = err.Error()
		return out, nil
	}

	// 2. 解析基线（没有基线则不做检测，不使用默认值）
	baseline, err := e.resolver.Resolve(ctx, r.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve baseline: %w", err)
	}
	if baseline == nil {
		e.logger.Debug("No baseline, detection disabled",
			zap.String("device_id", r.DeviceID),
		)
		out.Kind = OutcomeDetectionDisabled
		return out, nil
	}
	out.UserID = baseline.UserID

	// 3. 追加到会话窗口
	if err := e.windows.Append(r); err != nil {
		if errors.Is(err, window.ErrOutOfOrder) {
			e.logger.Warn("Dropping out-of-order reading",
				zap.String("device_id", r.DeviceID),
				zap.Time("timestamp", r.Timestamp),
			)
			out.Kind = OutcomeDropped
			out.Reason = err.Error()
			return out, nil
		}
		return nil, fmt.Errorf("failed to append reading: %w", err)
	}

	// 4. 评估并乐观写回持续状态
	result, ok, err := e.evaluateWithState(ctx, r, baseline)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.logger.Warn("Anomaly state conflict, skipping reading",
			zap.String("user_id", baseline.UserID),
			zap.String("device_id", r.DeviceID),
			zap.Int("retries", e.cfg.Anxiety.StateConflictRetries),
		)
		out.Kind = OutcomeSkippedConflict
		return out, nil
	}
	if result == nil {
		out.Kind = OutcomeDropped
		out.Reason = "reading older than user state"
		return out, nil
	}
	out.Decision = result.Decision

	if !result.Decision.Trigger {
		out.Kind = OutcomeNoTrigger
		return out, nil
	}

	// 5. 冷却窗口（检查与占用是一次原子操作）
	d := result.Decision
	entry, allowed, err := e.limiter.Reserve(ctx, baseline.UserID, d.Severity, r.Timestamp, e.cfg.CooldownFor(d.Severity))
	if err != nil {
		return nil, fmt.Errorf("failed to reserve cooldown window: %w", err)
	}
	if !allowed {
		out.Kind = OutcomeRateLimited
		out.DedupKey = evaluator.DedupKey(baseline.UserID, d.Severity, entry.LastSentAt)
		e.recordSuppression(ctx, r, d, out.DedupKey, baseline.UserID)
		return out, nil
	}

	// 6. 构建并持久化报警
	builder := evaluator.NewAlertBuilder(baseline.UserID, r.DeviceID)
	alert, err := builder.BuildAlert(r, baseline.RestingHeartRate, *result, entry.LastSentAt)
	if err != nil {
		return nil, fmt.Errorf("failed to build alert: %w", err)
	}

	persisted := true
	if err := e.alerts.CreateAlert(ctx, alert); err != nil {
		// 持久化失败仍然通知用户
		persisted = false
		e.logger.Error("Failed to persist alert",
			zap.String("alert_id", alert.ID),
			zap.String("user_id", alert.UserID),
			zap.Error(err),
		)
	}

	metrics.AlertsTotal.WithLabelValues(alert.Severity.String(), alert.Rule).Inc()
	e.logger.Info("Anxiety alert triggered",
		zap.String("alert_id", alert.ID),
		zap.String("user_id", alert.UserID),
		zap.String("device_id", alert.DeviceID),
		zap.String("severity", alert.Severity.String()),
		zap.String("rule", alert.Rule),
		zap.Int("confidence", alert.Confidence),
		zap.Float64("heart_rate", alert.HeartRate),
		zap.Float64("baseline", alert.BaselineAtTime),
	)

	// 7. 后台投递，不阻塞读数处理
	payload := notifier.BuildPayload(alert, evaluator.PercentageAbove(alert.HeartRate, alert.BaselineAtTime), e.dispatcher.Channel())
	e.deliveries.Add(1)
	go func() {
		defer e.deliveries.Done()
		e.deliver(context.WithoutCancel(ctx), alert.ID, payload, entry, persisted)
	}()

	out.Kind = OutcomeTriggered
	out.Alert = alert
	out.DedupKey = alert.DedupKey
	return out, nil
}

// evaluateWithState 读取状态 → 评估 → CAS 写回，冲突时重新读取并重算
// ok=false 表示重试耗尽；result=nil 表示读数早于用户状态（同用户多设备乱序）
func (e *Engine) evaluateWithState(ctx context.Context, r models.Reading, baseline *models.Baseline) (*evaluator.Result, bool, error) {
	th := e.evaluator.Thresholds()
	span := e.windows.ContiguousSpan(r.DeviceID, th.GapTolerance())

	for attempt := 0; attempt <= e.cfg.Anxiety.StateConflictRetries; attempt++ {
		state, err := e.states.Get(ctx, baseline.UserID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to get anomaly state: %w", err)
		}
		if !state.LastReadingTimestamp.IsZero() && r.Timestamp.Before(state.LastReadingTimestamp) {
			return nil, true, nil
		}

		result, err := e.evaluator.Evaluate(evaluator.Input{
			UserID:         baseline.UserID,
			Reading:        r,
			Baseline:       baseline.RestingHeartRate,
			ContiguousSpan: span,
		}, state)
		if err != nil {
			return nil, false, fmt.Errorf("failed to evaluate reading: %w", err)
		}

		if _, err := e.states.CompareAndSwap(ctx, result.State, state.Version); err != nil {
			if errors.Is(err, store.ErrStateConflict) {
				e.logger.Debug("Anomaly state conflict, retrying",
					zap.String("user_id", baseline.UserID),
					zap.Int("attempt", attempt+1),
				)
				continue
			}
			return nil, false, fmt.Errorf("failed to save anomaly state: %w", err)
		}
		return &result, true, nil
	}
	return nil, false, nil
}

// recordSuppression 记录被冷却窗口抑制的触发（失败只记日志）
func (e *Engine) recordSuppression(ctx context.Context, r models.Reading, d evaluator.Decision, dedupKey, userID string) {
	metrics.SuppressionsTotal.WithLabelValues(d.Severity.String()).Inc()

	s := &models.SuppressedTrigger{
		UserID:       userID,
		Severity:     d.Severity,
		Rule:         string(d.Rule),
		HeartRate:    *r.HeartRate,
		Confidence:   d.Confidence,
		DedupKey:     dedupKey,
		SuppressedAt: r.Timestamp,
	}
	if err := e.alerts.RecordSuppression(ctx, s); err != nil {
		e.logger.Warn("Failed to record suppressed trigger",
			zap.String("user_id", userID),
			zap.String("dedup_key", dedupKey),
			zap.Error(err),
		)
		return
	}
	e.logger.Info("Anxiety trigger suppressed by cooldown",
		zap.String("user_id", userID),
		zap.String("severity", d.Severity.String()),
		zap.String("dedup_key", dedupKey),
	)
}

// deliver 投递通知并更新投递状态
// 投递失败时报警仍然保留，状态为 undelivered，并释放本次占用的冷却窗口
func (e *Engine) deliver(ctx context.Context, alertID string, payload *models.NotificationPayload, entry models.RateLimitEntry, persisted bool) {
	status := models.DeliveryDelivered
	if err := e.dispatcher.Dispatch(ctx, payload); err != nil {
		status = models.DeliveryUndelivered
		e.logger.Warn("Alert left undelivered",
			zap.String("alert_id", alertID),
			zap.String("user_id", payload.UserID),
			zap.Error(err),
		)
		if err := e.limiter.Release(ctx, entry.UserID, entry.Severity, entry); err != nil {
			e.logger.Error("Failed to release cooldown window",
				zap.String("alert_id", alertID),
				zap.String("user_id", entry.UserID),
				zap.String("severity", entry.Severity.String()),
				zap.Error(err),
			)
		}
	}
	metrics.DeliveriesTotal.WithLabelValues(string(status)).Inc()

	if !persisted {
		return
	}
	if err := e.alerts.UpdateDeliveryStatus(ctx, alertID, status); err != nil {
		e.logger.Error("Failed to update delivery status",
			zap.String("alert_id", alertID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// Wait 等待所有后台投递完成
func (e *Engine) Wait() {
	e.deliveries.Wait()
}

// EndSession 结束设备会话，丢弃其窗口
func (e *Engine) EndSession(deviceID, sessionID string) bool {
	return e.windows.EndSession(deviceID, sessionID)
}

// RecordConfirmation 记录用户对确认提示的回复
func (e *Engine) RecordConfirmation(ctx context.Context, resp models.ConfirmationResponse) error {
	if resp.AlertID == "" {
		return fmt.Errorf("%w: alert_id is required", ErrInvalidConfirmation)
	}
	if !resp.UserResponse.Valid() {
		return fmt.Errorf("%w: user_response %q", ErrInvalidConfirmation, resp.UserResponse)
	}
	if resp.RespondedAt.IsZero() {
		resp.RespondedAt = e.now().UTC()
	}
	return e.alerts.RecordConfirmation(ctx, resp)
}

// GetAlert 查询单条报警，不存在时返回 (nil, nil)
func (e *Engine) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	return e.alerts.GetAlert(ctx, alertID)
}

// ListAlerts 查询用户的报警历史
func (e *Engine) ListAlerts(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	return e.alerts.ListAlertsByUser(ctx, userID, limit)
}

// ListUndeliveredAlerts 查询投递失败的报警
func (e *Engine) ListUndeliveredAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	return e.alerts.ListUndeliveredAlerts(ctx, limit)
}
