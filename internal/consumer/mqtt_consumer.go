package consumer

import (
	"context"
	"fmt"

	mqttcommon "wisefido-anxiety/common/mqtt"
	"wisefido-anxiety/internal/metrics"

	"go.uber.org/zap"
)

// Subscriber MQTT 订阅接口（common/mqtt.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTConsumer 订阅 wearable/+/reading 并把读数投递到 worker pool
type MQTTConsumer struct {
	client Subscriber
	topic  string
	qos    byte
	pool   *WorkerPool
	logger *zap.Logger
	ctx    context.Context
}

// NewMQTTConsumer 创建 MQTT 消费者
func NewMQTTConsumer(client Subscriber, topic string, qos byte, pool *WorkerPool, logger *zap.Logger) *MQTTConsumer {
	return &MQTTConsumer{
		client: client,
		topic:  topic,
		qos:    qos,
		pool:   pool,
		logger: logger,
		ctx:    context.Background(),
	}
}

// Start 启动消费者（阻塞直到 ctx 取消）
func (c *MQTTConsumer) Start(ctx context.Context) error {
	c.ctx = ctx
	if err := c.client.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to reading topic: %w", err)
	}

	c.logger.Info("MQTT consumer started", zap.String("topic", c.topic))

	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *MQTTConsumer) Stop() {
	if err := c.client.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	c.logger.Info("MQTT consumer stopped")
}

// handleMessage 处理 MQTT 消息
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	reading, err := DecodeReading(payload, deviceFromTopic(topic))
	if err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("mqtt", "decode_error").Inc()
		return fmt.Errorf("failed to decode reading from %s: %w", topic, err)
	}

	if err := c.pool.Submit(c.ctx, reading); err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("mqtt", "rejected").Inc()
		return fmt.Errorf("failed to submit reading: %w", err)
	}

	metrics.IngestMessagesTotal.WithLabelValues("mqtt", "accepted").Inc()
	return nil
}
