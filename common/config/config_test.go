package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_GetDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "owl",
		Password: "secret",
		Database: "anxiety",
		SSLMode:  "disable",
	}

	assert.Equal(t, "host=db port=5433 user=owl password=secret dbname=anxiety sslmode=disable", cfg.GetDSN())
}

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "pg.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_MAX_CONNS", "not-a-number")

	cfg := DatabaseConfig{Host: "localhost", Port: 5432, MaxConns: 20}
	cfg.LoadFromEnv("DB")

	assert.Equal(t, "pg.internal", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	// 非法数值保持原值
	assert.Equal(t, 20, cfg.MaxConns)
}

func TestMQTTConfig_LoadFromEnv_QoS(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_QOS", "2")

	cfg := MQTTConfig{QoS: 1}
	cfg.LoadFromEnv("MQTT")
	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, byte(2), cfg.QoS)

	t.Setenv("MQTT_QOS", "7")
	cfg.LoadFromEnv("MQTT")
	assert.Equal(t, byte(2), cfg.QoS)
}

func TestRedisConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_DB", "3")

	cfg := RedisConfig{Addr: "localhost:6379"}
	cfg.LoadFromEnv("REDIS")

	assert.Equal(t, "cache:6380", cfg.Addr)
	assert.Equal(t, 3, cfg.DB)
}
