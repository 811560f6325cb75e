package notifier

import (
	"context"
	"fmt"
	"time"

	"wisefido-anxiety/internal/metrics"
	"wisefido-anxiety/internal/models"

	"go.uber.org/zap"
)

// DispatchConfig 投递重试配置
type DispatchConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Dispatcher 带指数退避重试的通知投递
type Dispatcher struct {
	notifier Notifier
	cfg      DispatchConfig
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewDispatcher 创建投递器
func NewDispatcher(n Notifier, cfg DispatchConfig, logger *zap.Logger) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Dispatcher{
		notifier: n,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// Channel 投递通道
func (d *Dispatcher) Channel() string {
	return d.notifier.Channel()
}

// Dispatch 投递通知，重试耗尽返回包装了 ErrDeliveryFailed 的错误
func (d *Dispatcher) Dispatch(ctx context.Context, payload *models.NotificationPayload) error {
	channel := d.notifier.Channel()
	backoff := d.cfg.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		err := d.notifier.Notify(ctx, payload)
		if err == nil {
			metrics.NotificationAttemptsTotal.WithLabelValues(channel, "success").Inc()
			return nil
		}

		lastErr = err
		metrics.NotificationAttemptsTotal.WithLabelValues(channel, "failure").Inc()
		d.logger.Warn("Notification attempt failed",
			zap.String("alert_id", payload.AlertID),
			zap.String("channel", channel),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt == d.cfg.MaxAttempts {
			break
		}
		if err := d.sleep(ctx, backoff); err != nil {
			lastErr = err
			break
		}
		backoff *= 2
		if d.cfg.MaxBackoff > 0 && backoff > d.cfg.MaxBackoff {
			backoff = d.cfg.MaxBackoff
		}
	}

	return fmt.Errorf("%w: %v", ErrDeliveryFailed, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
