package consumer

import (
	"context"
	"fmt"

	"wisefido-anxiety/internal/metrics"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConsumer 订阅 NATS subject（消息体需带 device_id）
type NATSConsumer struct {
	conn    *nats.Conn
	subject string
	pool    *WorkerPool
	logger  *zap.Logger
	sub     *nats.Subscription
	ctx     context.Context
}

// NewNATSConsumer 创建 NATS 消费者
func NewNATSConsumer(conn *nats.Conn, subject string, pool *WorkerPool, logger *zap.Logger) *NATSConsumer {
	return &NATSConsumer{
		conn:    conn,
		subject: subject,
		pool:    pool,
		logger:  logger,
		ctx:     context.Background(),
	}
}

// Start 启动消费者（阻塞直到 ctx 取消）
func (c *NATSConsumer) Start(ctx context.Context) error {
	c.ctx = ctx
	sub, err := c.conn.Subscribe(c.subject, c.handleMsg)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.subject, err)
	}
	c.sub = sub

	c.logger.Info("NATS consumer started", zap.String("subject", c.subject))

	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *NATSConsumer) Stop() {
	if c.sub != nil {
		if err := c.sub.Unsubscribe(); err != nil {
			c.logger.Error("Failed to unsubscribe", zap.Error(err))
		}
	}
	c.logger.Info("NATS consumer stopped")
}

func (c *NATSConsumer) handleMsg(msg *nats.Msg) {
	reading, err := DecodeReading(msg.Data, "")
	if err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("nats", "decode_error").Inc()
		c.logger.Warn("Failed to decode NATS reading",
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
		return
	}

	if err := c.pool.Submit(c.ctx, reading); err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("nats", "rejected").Inc()
		c.logger.Warn("Failed to submit NATS reading",
			zap.String("device_id", reading.DeviceID),
			zap.Error(err),
		)
		return
	}
	metrics.IngestMessagesTotal.WithLabelValues("nats", "accepted").Inc()
}
