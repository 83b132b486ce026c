package messaging

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpMessage struct {
	settled

	d amqp.Delivery
}

func newAMQPMessage(d amqp.Delivery) *amqpMessage {
	return &amqpMessage{d: d}
}

func (m *amqpMessage) Body() []byte { return m.d.Body }
func (m *amqpMessage) Key() []byte  { return nil }

func (m *amqpMessage) Headers() []Header {
	if len(m.d.Headers) == 0 {
		return nil
	}

	out := make([]Header, 0, len(m.d.Headers))
	for k, v := range m.d.Headers {
		out = append(out, Header{Key: k, Value: amqpHeaderValue(v)})
	}
	return out
}

func (m *amqpMessage) Attributes() map[string]string {
	if len(m.d.Headers) == 0 {
		return nil
	}

	attrs := make(map[string]string, len(m.d.Headers))
	for k, v := range m.d.Headers {
		attrs[k] = string(amqpHeaderValue(v))
	}
	return attrs
}

func (m *amqpMessage) ID() string { return m.d.MessageId }

func (m *amqpMessage) Topic() string   { return m.d.RoutingKey }
func (m *amqpMessage) Subject() string { return "" }

func (m *amqpMessage) Timestamp() time.Time { return m.d.Timestamp }

func (m *amqpMessage) Ack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.settle() {
		return nil
	}
	return m.d.Ack(false)
}

func (m *amqpMessage) Nack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.settle() {
		return nil
	}
	return m.d.Nack(false, true)
}

func (m *amqpMessage) Metadata() map[string]any {
	return map[string]any{
		"delivery_tag": m.d.DeliveryTag,
		"redelivered":  m.d.Redelivered,
		"consumer_tag": m.d.ConsumerTag,
		"exchange":     m.d.Exchange,
	}
}

func amqpHeaderValue(v any) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		return fmt.Appendf(nil, "%v", t)
	}
}
