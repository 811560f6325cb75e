package consumer

import (
	"context"
	"fmt"
	"time"

	rediscommon "wisefido-anxiety/common/redis"
	"wisefido-anxiety/internal/metrics"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamConfig Redis Streams 消费配置
type StreamConfig struct {
	Stream        string
	ConsumerGroup string
	ConsumerName  string
	BatchSize     int64
	Block         time.Duration
}

// StreamConsumer 从 Redis Streams 读取读数（data 字段为 JSON）
type StreamConsumer struct {
	cfg         StreamConfig
	redisClient *redis.Client
	pool        *WorkerPool
	logger      *zap.Logger
}

// NewStreamConsumer 创建 Streams 消费者
func NewStreamConsumer(cfg StreamConfig, redisClient *redis.Client, pool *WorkerPool, logger *zap.Logger) *StreamConsumer {
	if cfg.Block <= 0 {
		cfg.Block = time.Second
	}
	return &StreamConsumer{
		cfg:         cfg,
		redisClient: redisClient,
		pool:        pool,
		logger:      logger,
	}
}

// Start 启动消费者（阻塞直到 ctx 取消）
func (c *StreamConsumer) Start(ctx context.Context) error {
	// 创建消费者组
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, c.cfg.Stream, c.cfg.ConsumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", c.cfg.Stream, err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("consumer_group", c.cfg.ConsumerGroup),
		zap.String("consumer_name", c.cfg.ConsumerName),
		zap.String("stream", c.cfg.Stream),
	)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := c.consumeStream(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume stream",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)

			// 指数退避
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
			continue
		}
		backoffDuration = time.Second
	}
}

// consumeStream 读取一批消息并投递
// 投递到 worker pool 后即 ACK，解析失败的消息同样 ACK（丢弃）
func (c *StreamConsumer) consumeStream(ctx context.Context) error {
	messages, err := rediscommon.ReadFromStream(
		ctx,
		c.redisClient,
		c.cfg.Stream,
		c.cfg.ConsumerGroup,
		c.cfg.ConsumerName,
		c.cfg.BatchSize,
		c.cfg.Block,
	)
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, msg := range messages {
		if err := c.processMessage(ctx, msg); err != nil {
			c.logger.Warn("Failed to process stream message",
				zap.String("stream_id", msg.ID),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				// 未投递的消息留在 pending 列表
				return ctx.Err()
			}
		}
		if err := rediscommon.AckStream(ctx, c.redisClient, c.cfg.Stream, c.cfg.ConsumerGroup, msg.ID); err != nil {
			return fmt.Errorf("failed to ack message %s: %w", msg.ID, err)
		}
	}
	return nil
}

func (c *StreamConsumer) processMessage(ctx context.Context, msg rediscommon.StreamMessage) error {
	val, ok := msg.Values["data"]
	if !ok {
		metrics.IngestMessagesTotal.WithLabelValues("stream", "decode_error").Inc()
		return fmt.Errorf("missing data field in message")
	}
	dataStr, ok := val.(string)
	if !ok {
		metrics.IngestMessagesTotal.WithLabelValues("stream", "decode_error").Inc()
		return fmt.Errorf("invalid data format in message")
	}

	reading, err := DecodeReading([]byte(dataStr), "")
	if err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("stream", "decode_error").Inc()
		return err
	}

	if err := c.pool.Submit(ctx, reading); err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("stream", "rejected").Inc()
		return fmt.Errorf("failed to submit reading: %w", err)
	}

	metrics.IngestMessagesTotal.WithLabelValues("stream", "accepted").Inc()
	return nil
}
