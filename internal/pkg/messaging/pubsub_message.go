package messaging

import (
	"context"
	"time"

	"cloud.google.com/go/pubsub/v2"
)

type pubSubMessage struct {
	settled

	topic        string
	subscription string
	msg          *pubsub.Message
}

func newPubSubMessage(topic, subscription string, msg *pubsub.Message) *pubSubMessage {
	return &pubSubMessage{topic: topic, subscription: subscription, msg: msg}
}

func (m *pubSubMessage) Body() []byte                  { return m.msg.Data }
func (m *pubSubMessage) Key() []byte                   { return []byte(m.msg.OrderingKey) }
func (m *pubSubMessage) Attributes() map[string]string { return m.msg.Attributes }
func (m *pubSubMessage) ID() string                    { return m.msg.ID }
func (m *pubSubMessage) Topic() string                 { return m.topic }
func (m *pubSubMessage) Subject() string               { return m.subscription }
func (m *pubSubMessage) Timestamp() time.Time          { return m.msg.PublishTime }

// Headers mirrors the attributes, Pub/Sub has nothing else.
func (m *pubSubMessage) Headers() []Header {
	var headers []Header
	for k, v := range m.msg.Attributes {
		headers = append(headers, Header{Key: k, Value: []byte(v)})
	}
	return headers
}

func (m *pubSubMessage) Ack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.settle() {
		m.msg.Ack()
	}
	return nil
}

func (m *pubSubMessage) Nack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.settle() {
		m.msg.Nack()
	}
	return nil
}

func (m *pubSubMessage) Metadata() map[string]any {
	meta := map[string]any{
		"subscription": m.subscription,
		"ordering_key": m.msg.OrderingKey,
	}
	if m.msg.DeliveryAttempt != nil {
		meta["delivery_attempt"] = *m.msg.DeliveryAttempt
	}
	return meta
}
