package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
)

type natsMessage struct {
	settled

	msg        *nats.Msg
	receivedAt time.Time
}

func newNATSMessage(msg *nats.Msg) *natsMessage {
	return &natsMessage{msg: msg, receivedAt: time.Now()}
}

func (m *natsMessage) Body() []byte    { return m.msg.Data }
func (m *natsMessage) Key() []byte     { return nil }
func (m *natsMessage) ID() string      { return "" }
func (m *natsMessage) Topic() string   { return "" }
func (m *natsMessage) Subject() string { return m.msg.Subject }

// Timestamp is the local receive time, core NATS carries none.
func (m *natsMessage) Timestamp() time.Time { return m.receivedAt }

func (m *natsMessage) Headers() []Header {
	var headers []Header
	for k, values := range m.msg.Header {
		for _, v := range values {
			headers = append(headers, Header{Key: k, Value: []byte(v)})
		}
	}
	return headers
}

func (m *natsMessage) Attributes() map[string]string {
	if len(m.msg.Header) == 0 {
		return nil
	}

	attrs := make(map[string]string, len(m.msg.Header))
	for k := range m.msg.Header {
		attrs[k] = m.msg.Header.Get(k)
	}
	return attrs
}

// Ack and Nack only talk to the server for JetStream deliveries; on core NATS
// there is nothing to settle.
func (m *natsMessage) Ack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.settle() {
		return nil
	}
	return ignoreNoReply(m.msg.Ack())
}

func (m *natsMessage) Nack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.settle() {
		return nil
	}
	return ignoreNoReply(m.msg.Nak())
}

func (m *natsMessage) Metadata() map[string]any {
	meta := map[string]any{"reply": m.msg.Reply}
	if md, err := m.msg.Metadata(); err == nil {
		meta["stream_sequence"] = md.Sequence.Stream
		meta["num_delivered"] = md.NumDelivered
	}
	return meta
}

func ignoreNoReply(err error) error {
	if errors.Is(err, nats.ErrMsgNoReply) || errors.Is(err, nats.ErrMsgNotBound) {
		return nil
	}
	return err
}
