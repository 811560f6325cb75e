package notifier

import (
	"context"
	"fmt"
	"time"

	"wisefido-anxiety/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var _ Notifier = (*PushNotifier)(nil)

// PushConfig 推送网关配置
type PushConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// PushNotifier 通过外部推送网关投递通知
// 重试由 Dispatcher 负责，这里不开启 resty 的自动重试
type PushNotifier struct {
	httpClient *resty.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// pushResponse 推送网关响应
type pushResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// NewPushNotifier 创建推送通知器
func NewPushNotifier(cfg PushConfig, logger *zap.Logger) *PushNotifier {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &PushNotifier{
		httpClient: client,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
}

// Notify 投递通知
func (p *PushNotifier) Notify(ctx context.Context, payload *models.NotificationPayload) error {
	// 网关限速
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("push rate limiter: %w", err)
	}

	var result pushResponse
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", payload.DedupKey).
		SetBody(payload).
		SetResult(&result).
		Post("/v1/notifications")
	if err != nil {
		return fmt.Errorf("failed to call push gateway: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push gateway returned status %d", resp.StatusCode())
	}

	p.logger.Debug("Push notification accepted",
		zap.String("alert_id", payload.AlertID),
		zap.String("message_id", result.MessageID),
	)
	return nil
}

// Channel 通道标识
func (p *PushNotifier) Channel() string {
	return "push"
}
