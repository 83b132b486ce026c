package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisMessage struct {
	settled

	client  *redis.Client
	queue   string
	pending string
	active  string
	raw     string
	env     redisEnvelope
}

func newRedisMessage(client *redis.Client, queue, pending, active, raw string, env redisEnvelope) *redisMessage {
	return &redisMessage{
		client:  client,
		queue:   queue,
		pending: pending,
		active:  active,
		raw:     raw,
		env:     env,
	}
}

func (m *redisMessage) Body() []byte { return m.env.Body }
func (m *redisMessage) Key() []byte  { return m.env.Key }

func (m *redisMessage) Headers() []Header {
	if len(m.env.Headers) == 0 {
		return nil
	}

	out := make([]Header, 0, len(m.env.Headers))
	for k, v := range m.env.Headers {
		out = append(out, Header{Key: k, Value: []byte(v)})
	}
	return out
}

func (m *redisMessage) Attributes() map[string]string { return m.env.Headers }

func (m *redisMessage) ID() string { return m.env.ID }

func (m *redisMessage) Topic() string   { return m.queue }
func (m *redisMessage) Subject() string { return "" }

func (m *redisMessage) Timestamp() time.Time { return m.env.PublishedAt }

// Ack removes the message from the active list.
func (m *redisMessage) Ack(ctx context.Context) error {
	if !m.settle() {
		return nil
	}
	if err := m.client.LRem(ctx, m.active, 1, m.raw).Err(); err != nil {
		return fmt.Errorf("pkgmessage: redis ack: %w", err)
	}
	return nil
}

// Nack moves the message from the active list to the back of the pending list.
func (m *redisMessage) Nack(ctx context.Context) error {
	if !m.settle() {
		return nil
	}
	_, err := m.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, m.active, 1, m.raw)
		p.LPush(ctx, m.pending, m.raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("pkgmessage: redis nack: %w", err)
	}
	return nil
}

func (m *redisMessage) Metadata() map[string]any {
	return map[string]any{
		"pending_key": m.pending,
		"active_key":  m.active,
	}
}
