package messaging

import (
	"context"
	"time"

	nsq "github.com/nsqio/go-nsq"
)

type nsqMessage struct {
	settled

	topic string
	msg   *nsq.Message
}

func newNSQMessage(topic string, msg *nsq.Message) *nsqMessage {
	return &nsqMessage{topic: topic, msg: msg}
}

func (m *nsqMessage) Body() []byte                  { return m.msg.Body }
func (m *nsqMessage) Key() []byte                   { return nil }
func (m *nsqMessage) Headers() []Header             { return nil }
func (m *nsqMessage) Attributes() map[string]string { return nil }
func (m *nsqMessage) ID() string                    { return string(m.msg.ID[:]) }
func (m *nsqMessage) Topic() string                 { return m.topic }
func (m *nsqMessage) Subject() string               { return "" }
func (m *nsqMessage) Timestamp() time.Time          { return time.Unix(0, m.msg.Timestamp) }

func (m *nsqMessage) Ack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.settle() {
		m.msg.Finish()
	}
	return nil
}

// Nack requeues with nsqd's default backoff.
func (m *nsqMessage) Nack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.settle() {
		m.msg.Requeue(-1)
	}
	return nil
}

func (m *nsqMessage) Metadata() map[string]any {
	return map[string]any{
		"attempts":     m.msg.Attempts,
		"nsqd_address": m.msg.NSQDAddress,
	}
}
