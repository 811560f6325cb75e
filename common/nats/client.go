package nats

import (
	"fmt"

	"wisefido-anxiety/common/config"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Connect 连接 NATS（无限重连）
func Connect(cfg *config.NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(
		cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// Close 关闭连接（nil 安全）
func Close(nc *nats.Conn) {
	if nc != nil {
		nc.Close()
	}
}
