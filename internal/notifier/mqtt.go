package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"wisefido-anxiety/internal/models"
)

var _ Notifier = (*MQTTNotifier)(nil)

// Publisher MQTT 发布接口（common/mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTNotifier 把通知发布到 <topicPrefix><user_id>
type MQTTNotifier struct {
	publisher   Publisher
	topicPrefix string
	qos         byte
}

// NewMQTTNotifier 创建 MQTT 通知器
func NewMQTTNotifier(publisher Publisher, topicPrefix string, qos byte) *MQTTNotifier {
	return &MQTTNotifier{
		publisher:   publisher,
		topicPrefix: topicPrefix,
		qos:         qos,
	}
}

// Notify 发布通知
func (m *MQTTNotifier) Notify(ctx context.Context, payload *models.NotificationPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := m.publisher.Publish(m.topicPrefix+payload.UserID, m.qos, false, data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Channel 通道标识
func (m *MQTTNotifier) Channel() string {
	return "mqtt"
}
