package service

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-anxiety/common/database"
	mqttcommon "wisefido-anxiety/common/mqtt"
	natscommon "wisefido-anxiety/common/nats"
	rediscommon "wisefido-anxiety/common/redis"
	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/consumer"
	"wisefido-anxiety/internal/models"
	"wisefido-anxiety/internal/notifier"
	"wisefido-anxiety/internal/repository"
	"wisefido-anxiety/internal/store"
	"wisefido-anxiety/internal/window"

	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// AnxietyService 焦虑检测服务（整合各层）
type AnxietyService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client // 未启用 MQTT 时为 nil
	natsConn    *nats.Conn         // 未启用 NATS 时为 nil
	logger      *zap.Logger

	// 各层组件
	engine         *Engine
	pool           *consumer.WorkerPool
	mqttConsumer   *consumer.MQTTConsumer
	streamConsumer *consumer.StreamConsumer
	natsConsumer   *consumer.NATSConsumer
}

// NewAnxietyService 创建焦虑检测服务
func NewAnxietyService(cfg *config.Config, logger *zap.Logger) (*AnxietyService, error) {
	ctx := context.Background()
	s := &AnxietyService{config: cfg, logger: logger}

	// 1. 连接数据库
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	s.db = db

	// 2. 连接 Redis
	s.redisClient = rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(ctx, s.redisClient); err != nil {
		s.closeConnections()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT（接入读数或通过 MQTT 投递通知时需要）
	if cfg.Ingest.MQTT.Enabled || cfg.Anxiety.Dispatch.Channel == "mqtt" {
		s.mqttClient, err = mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			s.closeConnections()
			return nil, fmt.Errorf("failed to connect mqtt: %w", err)
		}
	}

	// 4. 连接 NATS
	if cfg.Ingest.NATS.Enabled {
		s.natsConn, err = natscommon.Connect(&cfg.NATS, logger)
		if err != nil {
			s.closeConnections()
			return nil, fmt.Errorf("failed to connect nats: %w", err)
		}
	}

	// 5. 创建 Repository 层
	baselineRepo := repository.NewBaselineRepository(db, logger)
	alertRepo := repository.NewAlertRepository(db, logger)
	baselineCache := store.NewBaselineCache(
		store.NewRedisKVStore(s.redisClient),
		cfg.Anxiety.Cache.BaselineKeyPrefix,
		cfg.Anxiety.Cache.BaselineTTL,
	)
	resolver := repository.NewBaselineResolver(baselineRepo, baselineCache, logger)

	// 6. 创建状态与冷却存储
	states := store.NewRedisStateStore(s.redisClient, cfg.Anxiety.Cache.StateKeyPrefix, cfg.Anxiety.Cache.StateTTL)
	limiter := store.NewRedisRateLimiter(s.redisClient, cfg.Anxiety.Cache.RateLimitKeyPrefix)

	// 7. 创建通知投递
	dispatcher := notifier.NewDispatcher(s.buildNotifier(), notifier.DispatchConfig{
		MaxAttempts:    cfg.Anxiety.Dispatch.MaxAttempts,
		InitialBackoff: cfg.Anxiety.Dispatch.InitialBackoff,
		MaxBackoff:     cfg.Anxiety.Dispatch.MaxBackoff,
	}, logger)

	// 8. 创建处理引擎
	windows := window.NewManager(cfg.Anxiety.Window.MaxAge, cfg.Anxiety.Window.SessionIdleTimeout)
	s.engine = NewEngine(cfg, resolver, windows, states, limiter, alertRepo, dispatcher, logger)

	// 9. 创建 worker pool 与各接入源
	s.pool = consumer.NewWorkerPool(cfg.Ingest.Workers, cfg.Ingest.QueueSize, s.handleReading, logger)
	if cfg.Ingest.MQTT.Enabled {
		s.mqttConsumer = consumer.NewMQTTConsumer(s.mqttClient, cfg.Ingest.MQTT.Topic, cfg.MQTT.QoS, s.pool, logger)
	}
	if cfg.Ingest.Stream.Enabled {
		s.streamConsumer = consumer.NewStreamConsumer(consumer.StreamConfig{
			Stream:        cfg.Ingest.Stream.Name,
			ConsumerGroup: cfg.Ingest.Stream.ConsumerGroup,
			ConsumerName:  cfg.Ingest.Stream.ConsumerName,
			BatchSize:     cfg.Ingest.Stream.BatchSize,
		}, s.redisClient, s.pool, logger)
	}
	if cfg.Ingest.NATS.Enabled {
		s.natsConsumer = consumer.NewNATSConsumer(s.natsConn, cfg.Ingest.NATS.Subject, s.pool, logger)
	}

	return s, nil
}

// buildNotifier 按配置选择投递通道
func (s *AnxietyService) buildNotifier() notifier.Notifier {
	cfg := s.config
	if cfg.Anxiety.Dispatch.Channel == "mqtt" {
		return notifier.NewMQTTNotifier(s.mqttClient, cfg.Anxiety.AlertTopicPrefix, cfg.MQTT.QoS)
	}
	return notifier.NewPushNotifier(notifier.PushConfig{
		BaseURL:       cfg.Anxiety.Push.URL,
		APIKey:        cfg.Anxiety.Push.APIKey,
		Timeout:       cfg.Anxiety.Push.Timeout,
		RatePerSecond: cfg.Anxiety.Push.RatePerSecond,
		Burst:         cfg.Anxiety.Push.Burst,
	}, s.logger)
}

// handleReading worker pool 回调
func (s *AnxietyService) handleReading(ctx context.Context, r models.Reading) {
	out, err := s.engine.HandleReading(ctx, r)
	if err != nil {
		s.logger.Error("Failed to handle reading",
			zap.String("device_id", r.DeviceID),
			zap.Time("timestamp", r.Timestamp),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("Reading handled",
		zap.String("device_id", out.DeviceID),
		zap.String("user_id", out.UserID),
		zap.String("outcome", string(out.Kind)),
	)
}

// Engine 处理引擎（供 HTTP 层使用）
func (s *AnxietyService) Engine() *Engine {
	return s.engine
}

// Start 启动服务（阻塞直到 ctx 取消或某个接入源失败）
func (s *AnxietyService) Start(ctx context.Context) error {
	s.logger.Info("Starting anxiety service",
		zap.Bool("mqtt_ingest", s.mqttConsumer != nil),
		zap.Bool("stream_ingest", s.streamConsumer != nil),
		zap.Bool("nats_ingest", s.natsConsumer != nil),
		zap.String("dispatch_channel", s.engine.dispatcher.Channel()),
	)

	// 1. 启动 worker pool（停止时需要排空队列，不跟随 ctx 取消）
	s.pool.Start(context.WithoutCancel(ctx))

	// 2. 启动各接入源
	errCh := make(chan error, 3)
	run := func(name string, start func(context.Context) error) {
		go func() {
			if err := start(ctx); err != nil {
				errCh <- fmt.Errorf("failed to run %s consumer: %w", name, err)
			}
		}()
	}
	if s.mqttConsumer != nil {
		run("mqtt", s.mqttConsumer.Start)
	}
	if s.streamConsumer != nil {
		run("stream", s.streamConsumer.Start)
	}
	if s.natsConsumer != nil {
		run("nats", s.natsConsumer.Start)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Stop 停止服务
func (s *AnxietyService) Stop() error {
	s.logger.Info("Stopping anxiety service")

	// 1. 停止接入，排空队列
	if s.mqttConsumer != nil {
		s.mqttConsumer.Stop()
	}
	if s.natsConsumer != nil {
		s.natsConsumer.Stop()
	}
	s.pool.Stop()

	// 2. 等待后台投递完成
	s.engine.Wait()

	// 3. 关闭连接
	s.closeConnections()
	return nil
}

func (s *AnxietyService) closeConnections() {
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.natsConn != nil {
		natscommon.Close(s.natsConn)
	}

	// 关闭数据库连接
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Failed to close database",
				zap.Error(err),
			)
		}
	}

	// 关闭 Redis 连接
	if s.redisClient != nil {
		if err := rediscommon.Close(s.redisClient); err != nil {
			s.logger.Error("Failed to close redis",
				zap.Error(err),
			)
		}
	}
}
