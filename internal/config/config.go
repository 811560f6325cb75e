package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"wisefido-anxiety/common/config"
	"wisefido-anxiety/internal/models"
)

// Config 焦虑检测服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig
	NATS     config.NATSConfig

	// 焦虑检测服务特定配置
	Anxiety struct {
		Thresholds Thresholds

		// 冷却窗口（同一 user+severity 两次通知的最小间隔）
		Cooldown struct {
			Default     time.Duration
			PerSeverity map[models.Tier]time.Duration
		}

		// Redis 缓存配置
		Cache struct {
			StateKeyPrefix     string        // 持续状态键前缀，如 "anxiety:state:"
			StateTTL           time.Duration // 持续状态 TTL，超时后视为 normal
			RateLimitKeyPrefix string        // 冷却键前缀，如 "anxiety:ratelimit:"
			BaselineKeyPrefix  string        // 基线缓存键前缀，如 "anxiety:baseline:"
			BaselineTTL        time.Duration
		}

		// 滑动窗口
		Window struct {
			MaxAge             time.Duration // 窗口保留时长（≥ 持续时长 + 60s 余量）
			SessionIdleTimeout time.Duration // 会话空闲超过该时长即丢弃
		}

		StateConflictRetries int // 状态 CAS 冲突重试次数

		// 通知投递
		Dispatch struct {
			Channel        string // "push" 或 "mqtt"
			MaxAttempts    int
			InitialBackoff time.Duration
			MaxBackoff     time.Duration
		}

		Push struct {
			URL           string
			APIKey        string
			Timeout       time.Duration
			RatePerSecond float64
			Burst         int
		}

		AlertTopicPrefix string // MQTT 通知主题前缀，如 "anxiety/alerts/"
	}

	// 数据接入
	Ingest struct {
		MQTT struct {
			Enabled bool
			Topic   string // 如 "wearable/+/reading"
		}
		Stream struct {
			Enabled       bool
			Name          string
			ConsumerGroup string
			ConsumerName  string
			BatchSize     int64
		}
		NATS struct {
			Enabled bool
			Subject string
		}
		Workers   int // 按设备分片的单写者 worker 数量
		QueueSize int // 每个 worker 的队列长度
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", 20)
	cfg.Redis.DialTimeout = getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second)
	cfg.Redis.ReadTimeout = getEnvDuration("REDIS_READ_TIMEOUT", time.Second)
	cfg.Redis.WriteTimeout = getEnvDuration("REDIS_WRITE_TIMEOUT", time.Second)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-anxiety")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.NATS.URL = getEnv("NATS_URL", "nats://127.0.0.1:4222")
	cfg.NATS.Name = getEnv("NATS_NAME", "wisefido-anxiety")
	cfg.NATS.ConnectTimeout = 3 * time.Second
	cfg.NATS.ReconnectWait = 500 * time.Millisecond

	// 阈值
	cfg.Anxiety.Thresholds = loadThresholds()

	// 冷却窗口：默认 5 分钟，可按等级覆盖
	cfg.Anxiety.Cooldown.Default = getEnvDuration("ANXIETY_COOLDOWN", 5*time.Minute)
	cfg.Anxiety.Cooldown.PerSeverity = make(map[models.Tier]time.Duration)
	for _, tier := range models.AllTiers() {
		key := "ANXIETY_COOLDOWN_" + strings.ToUpper(tier.String())
		if d := getEnvDuration(key, 0); d > 0 {
			cfg.Anxiety.Cooldown.PerSeverity[tier] = d
		}
	}

	cfg.Anxiety.Cache.StateKeyPrefix = getEnv("CACHE_STATE_PREFIX", "anxiety:state:")
	cfg.Anxiety.Cache.StateTTL = 15 * time.Minute
	cfg.Anxiety.Cache.RateLimitKeyPrefix = getEnv("CACHE_RATELIMIT_PREFIX", "anxiety:ratelimit:")
	cfg.Anxiety.Cache.BaselineKeyPrefix = getEnv("CACHE_BASELINE_PREFIX", "anxiety:baseline:")
	cfg.Anxiety.Cache.BaselineTTL = getEnvDuration("CACHE_BASELINE_TTL", 60*time.Second)

	cfg.Anxiety.Window.MaxAge = getEnvDuration("WINDOW_MAX_AGE", 120*time.Second)
	cfg.Anxiety.Window.SessionIdleTimeout = getEnvDuration("WINDOW_SESSION_IDLE_TIMEOUT", 10*time.Minute)

	cfg.Anxiety.StateConflictRetries = getEnvInt("STATE_CONFLICT_RETRIES", 3)

	cfg.Anxiety.Dispatch.Channel = getEnv("DISPATCH_CHANNEL", "push")
	cfg.Anxiety.Dispatch.MaxAttempts = getEnvInt("DISPATCH_MAX_ATTEMPTS", 3)
	cfg.Anxiety.Dispatch.InitialBackoff = getEnvDuration("DISPATCH_INITIAL_BACKOFF", 500*time.Millisecond)
	cfg.Anxiety.Dispatch.MaxBackoff = getEnvDuration("DISPATCH_MAX_BACKOFF", 5*time.Second)

	cfg.Anxiety.Push.URL = getEnv("PUSH_GATEWAY_URL", "http://localhost:8090")
	cfg.Anxiety.Push.APIKey = getEnv("PUSH_GATEWAY_API_KEY", "")
	cfg.Anxiety.Push.Timeout = getEnvDuration("PUSH_GATEWAY_TIMEOUT", 10*time.Second)
	cfg.Anxiety.Push.RatePerSecond = getEnvFloat("PUSH_GATEWAY_RPS", 10)
	cfg.Anxiety.Push.Burst = getEnvInt("PUSH_GATEWAY_BURST", 20)

	cfg.Anxiety.AlertTopicPrefix = getEnv("ALERT_TOPIC_PREFIX", "anxiety/alerts/")

	// 数据接入
	cfg.Ingest.MQTT.Enabled = getEnvBool("INGEST_MQTT_ENABLED", true)
	cfg.Ingest.MQTT.Topic = getEnv("INGEST_MQTT_TOPIC", "wearable/+/reading")
	cfg.Ingest.Stream.Enabled = getEnvBool("INGEST_STREAM_ENABLED", false)
	cfg.Ingest.Stream.Name = getEnv("INGEST_STREAM", "wearable:reading:stream")
	cfg.Ingest.Stream.ConsumerGroup = getEnv("CONSUMER_GROUP", "anxiety-group")
	cfg.Ingest.Stream.ConsumerName = getEnv("CONSUMER_NAME", "anxiety-1")
	cfg.Ingest.Stream.BatchSize = 50
	cfg.Ingest.NATS.Enabled = getEnvBool("INGEST_NATS_ENABLED", false)
	cfg.Ingest.NATS.Subject = getEnv("INGEST_NATS_SUBJECT", "wearable.reading")
	cfg.Ingest.Workers = getEnvInt("WORKER_COUNT", 8)
	cfg.Ingest.QueueSize = getEnvInt("WORKER_QUEUE_SIZE", 256)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8085")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// CooldownFor 获取某等级的冷却时长
func (c *Config) CooldownFor(tier models.Tier) time.Duration {
	if d, ok := c.Anxiety.Cooldown.PerSeverity[tier]; ok && d > 0 {
		return d
	}
	return c.Anxiety.Cooldown.Default
}

func loadThresholds() Thresholds {
	t := DefaultThresholds()

	t.ElevatedOffset = getEnvFloat("ANXIETY_ELEVATED_OFFSET", t.ElevatedOffset)
	t.MildOffset = getEnvFloat("ANXIETY_MILD_OFFSET", t.MildOffset)
	t.ModerateOffset = getEnvFloat("ANXIETY_MODERATE_OFFSET", t.ModerateOffset)
	t.SevereOffset = getEnvFloat("ANXIETY_SEVERE_OFFSET", t.SevereOffset)
	t.CriticalOffset = getEnvFloat("ANXIETY_CRITICAL_OFFSET", t.CriticalOffset)

	t.MildRatio = getEnvFloat("ANXIETY_MILD_RATIO", t.MildRatio)
	t.ModerateRatio = getEnvFloat("ANXIETY_MODERATE_RATIO", t.ModerateRatio)
	t.SevereRatio = getEnvFloat("ANXIETY_SEVERE_RATIO", t.SevereRatio)
	t.CriticalRatio = getEnvFloat("ANXIETY_CRITICAL_RATIO", t.CriticalRatio)

	t.SpO2Critical = getEnvFloat("ANXIETY_SPO2_CRITICAL", t.SpO2Critical)
	t.SpO2Low = getEnvFloat("ANXIETY_SPO2_LOW", t.SpO2Low)

	t.SustainedMinDuration = getEnvDuration("ANXIETY_SUSTAINED_MIN", t.SustainedMinDuration)
	t.ExpectedInterval = getEnvDuration("ANXIETY_EXPECTED_INTERVAL", t.ExpectedInterval)

	return t
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
