package messaging

import (
	"context"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

type kafkaMessage struct {
	settled

	reader *kafka.Reader
	msg    kafka.Message
}

func newKafkaMessage(reader *kafka.Reader, msg kafka.Message) *kafkaMessage {
	return &kafkaMessage{reader: reader, msg: msg}
}

func (m *kafkaMessage) Body() []byte         { return m.msg.Value }
func (m *kafkaMessage) Key() []byte          { return m.msg.Key }
func (m *kafkaMessage) Topic() string        { return m.msg.Topic }
func (m *kafkaMessage) Subject() string      { return "" }
func (m *kafkaMessage) Timestamp() time.Time { return m.msg.Time }

// ID is topic/partition/offset, unique within the cluster.
func (m *kafkaMessage) ID() string {
	return m.msg.Topic + "/" + strconv.Itoa(m.msg.Partition) + "/" + strconv.FormatInt(m.msg.Offset, 10)
}

func (m *kafkaMessage) Headers() []Header {
	var headers []Header
	for _, h := range m.msg.Headers {
		headers = append(headers, Header{Key: h.Key, Value: h.Value})
	}
	return headers
}

// Attributes keeps the first value of repeated header keys.
func (m *kafkaMessage) Attributes() map[string]string {
	var attrs map[string]string
	for _, h := range m.msg.Headers {
		if attrs == nil {
			attrs = make(map[string]string, len(m.msg.Headers))
		}
		if _, ok := attrs[h.Key]; !ok {
			attrs[h.Key] = string(h.Value)
		}
	}
	return attrs
}

func (m *kafkaMessage) Ack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.settle() {
		return nil
	}
	return m.reader.CommitMessages(ctx, m.msg)
}

// Nack only marks the message; Kafka has no per message negative ack.
func (m *kafkaMessage) Nack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.settle()
	return nil
}

func (m *kafkaMessage) Metadata() map[string]any {
	return map[string]any{
		"topic":     m.msg.Topic,
		"partition": m.msg.Partition,
		"offset":    m.msg.Offset,
	}
}
