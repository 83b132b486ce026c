package messaging

import (
	"context"
	"errors"
	"io"
	"maps"
	"time"
)

// ErrUnsupported is returned when the selected broker cannot do what was asked,
// e.g. delayed delivery on NATS.
var ErrUnsupported = errors.New("pkgmessage: unsupported operation")

// ErrUnconfirmed wraps failures that happen after the broker client has taken
// the message, so it may already be on its way. Such publishes are not retried.
var ErrUnconfirmed = errors.New("pkgmessage: publish not confirmed")

// Messaging is one broker connection that can both publish and consume.
// Implementations are safe for concurrent use, so a producer and a consumer
// running in the same process share one value.
type Messaging interface {
	io.Closer

	Publisher
	Consumer
}

// Publisher sends messages to a named queue (topic, subject, list...).
type Publisher interface {
	Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error)
}

// Consumer receives messages from a named queue until ctx is done.
type Consumer interface {
	// Consume blocks. It returns ctx.Err() on cancellation, nil when the client
	// is closed underneath it, or the error that ended the receive loop.
	Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error
}

// Handler processes one received message. With WithAutoAck(true) a nil error
// acks the message and a non-nil error nacks it.
type Handler func(ctx context.Context, msg Message) error

// OutgoingMessage is what a producer hands to Publish.
type OutgoingMessage struct {
	Body []byte

	// Key is used for partitioning where the broker has partitions.
	Key []byte

	// Headers travel with the message on brokers that carry headers.
	// Duplicate keys are allowed.
	Headers []Header

	// Attributes are string attributes for brokers that model them. They are
	// merged with Headers: on AMQP a header with the same key wins, on Pub/Sub,
	// Redis and memory the attribute does.
	Attributes map[string]string

	// OrderingKey is honoured by Pub/Sub only.
	OrderingKey string

	// Delay asks for deferred delivery. Only NSQ supports it, everything else
	// returns ErrUnsupported.
	Delay time.Duration
}

// Header is one message header.
type Header struct {
	Key   string
	Value []byte
}

// PublishResult is what the broker told us about an accepted message.
// Fields the broker does not report stay zero.
type PublishResult struct {
	MessageID string
	Topic     string
	Timestamp time.Time
}

// Message is a received message.
type Message interface {
	Body() []byte
	Key() []byte
	Headers() []Header
	Attributes() map[string]string

	// ID is the broker message ID, empty when the broker has none (NATS core).
	ID() string
	Topic() string
	Subject() string
	Timestamp() time.Time

	// Ack settles the message as processed. Only the first Ack or Nack counts.
	Ack(ctx context.Context) error
}

// Nackable messages can be handed back for redelivery.
type Nackable interface {
	Nack(ctx context.Context) error
}

// MetadataCarrier exposes broker specific delivery details (attempts, offsets, tags).
type MetadataCarrier interface {
	Metadata() map[string]any
}

// mergeAttributes flattens headers into a string map, first value per key.
// Explicit attributes override headers.
func mergeAttributes(headers []Header, attrs map[string]string) map[string]string {
	if len(headers) == 0 && len(attrs) == 0 {
		return nil
	}

	out := make(map[string]string, len(headers)+len(attrs))
	for _, h := range headers {
		if h.Key == "" {
			continue
		}
		if _, ok := out[h.Key]; !ok {
			out[h.Key] = string(h.Value)
		}
	}
	maps.Copy(out, attrs)
	return out
}
