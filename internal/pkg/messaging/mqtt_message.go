package messaging

import (
	"context"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type mqttMessage struct {
	settled

	msg        mqtt.Message
	receivedAt time.Time
}

func newMQTTMessage(msg mqtt.Message, receivedAt time.Time) *mqttMessage {
	return &mqttMessage{msg: msg, receivedAt: receivedAt}
}

func (m *mqttMessage) Body() []byte { return m.msg.Payload() }
func (m *mqttMessage) Key() []byte  { return nil }

func (m *mqttMessage) Headers() []Header             { return nil }
func (m *mqttMessage) Attributes() map[string]string { return nil }

func (m *mqttMessage) ID() string { return strconv.FormatUint(uint64(m.msg.MessageID()), 10) }

func (m *mqttMessage) Topic() string   { return m.msg.Topic() }
func (m *mqttMessage) Subject() string { return "" }

// Timestamp is the local receive time; MQTT 3.1.1 carries none.
func (m *mqttMessage) Timestamp() time.Time { return m.receivedAt }

func (m *mqttMessage) Ack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.settle() {
		return nil
	}
	m.msg.Ack()
	return nil
}

// Nack leaves the message unacknowledged; the broker redelivers it on reconnect for QoS > 0.
func (m *mqttMessage) Nack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.settle()
	return nil
}

func (m *mqttMessage) Metadata() map[string]any {
	return map[string]any{
		"qos":       m.msg.Qos(),
		"retained":  m.msg.Retained(),
		"duplicate": m.msg.Duplicate(),
	}
}
