package messaging

import (
	"context"
	"time"
)

type memoryMessage struct {
	settled

	env     *memoryEnvelope
	requeue func()
}

func newMemoryMessage(env *memoryEnvelope, requeue func()) *memoryMessage {
	return &memoryMessage{env: env, requeue: requeue}
}

func (m *memoryMessage) Body() []byte                  { return m.env.body }
func (m *memoryMessage) Key() []byte                   { return m.env.key }
func (m *memoryMessage) Headers() []Header             { return m.env.headers }
func (m *memoryMessage) Attributes() map[string]string { return mergeAttributes(m.env.headers, m.env.attributes) }
func (m *memoryMessage) ID() string                    { return m.env.id }
func (m *memoryMessage) Topic() string                 { return m.env.queue }
func (m *memoryMessage) Subject() string               { return "" }
func (m *memoryMessage) Timestamp() time.Time          { return m.env.publishedAt }

func (m *memoryMessage) Ack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.settle()
	return nil
}

// Nack puts the message back at the tail of its queue.
func (m *memoryMessage) Nack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.settle() {
		m.requeue()
	}
	return nil
}

func (m *memoryMessage) Metadata() map[string]any {
	return map[string]any{
		"attempts": m.env.attempts,
		"queue":    m.env.queue,
	}
}
