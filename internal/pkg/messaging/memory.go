package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// DefaultMemoryQueueSize is the per-queue buffer used when MemoryConfig.QueueSize is not set.
const DefaultMemoryQueueSize = 1024

var (
	// ErrMemoryQueueRequired is returned when the queue name is empty.
	ErrMemoryQueueRequired = errors.New("pkgmessage: memory queue is required")
	// ErrMemoryHandlerRequired is returned when Consume is called with a nil handler.
	ErrMemoryHandlerRequired = errors.New("pkgmessage: memory handler is required")
)

// MemoryConfig configures the in-process implementation.
type MemoryConfig struct {
	// QueueSize is the buffer size of every queue.
	QueueSize int
}

// Memory is an in-process point-to-point queue implementation.
//
// Each published message is delivered to exactly one consumer of the queue
// it was published to. Nothing survives the process.
type Memory struct {
	size int
	seq  *atomic.Uint64

	mu     sync.Mutex
	queues map[string]chan *memoryEnvelope
	closed bool
	done   chan struct{}
}

type memoryEnvelope struct {
	id          string
	queue       string
	body        []byte
	key         []byte
	headers     []Header
	attributes  map[string]string
	publishedAt time.Time
	attempts    int
}

// NewMemory constructs an in-process messaging client.
func NewMemory(cfg MemoryConfig) *Memory {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultMemoryQueueSize
	}

	return &Memory{
		size:   size,
		seq:    atomic.NewUint64(0),
		queues: map[string]chan *memoryEnvelope{},
		done:   make(chan struct{}),
	}
}

// String describes the in-process queues.
func (m *Memory) String() string {
	return fmt.Sprintf("memory(queue_size=%d)", m.size)
}

// Close stops all consumers. Pending messages are dropped.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	return nil
}

// Len reports how many messages are waiting in queue.
func (m *Memory) Len(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.queues[queue])
}

// Publish enqueues a message, blocking while the queue is full.
func (m *Memory) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}
	if destination == "" {
		return PublishResult{}, ErrMemoryQueueRequired
	}
	if msg.Delay > 0 {
		return PublishResult{}, ErrUnsupported
	}

	q, err := m.queue(destination)
	if err != nil {
		return PublishResult{}, err
	}

	env := &memoryEnvelope{
		id:          strconv.FormatUint(m.seq.Inc(), 10),
		queue:       destination,
		body:        append([]byte(nil), msg.Body...),
		key:         msg.Key,
		headers:     append([]Header(nil), msg.Headers...),
		attributes:  msg.Attributes,
		publishedAt: time.Now(),
	}

	select {
	case q <- env:
	case <-ctx.Done():
		return PublishResult{}, ctx.Err()
	case <-m.done:
		return PublishResult{}, io.ErrClosedPipe
	}

	return PublishResult{
		MessageID: env.id,
		Topic:     destination,
		Timestamp: env.publishedAt,
	}, nil
}

// Consume delivers messages from the queue until ctx is canceled or the client is closed.
func (m *Memory) Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if source == "" {
		return ErrMemoryQueueRequired
	}
	if handler == nil {
		return ErrMemoryHandlerRequired
	}

	q, err := m.queue(source)
	if err != nil {
		return err
	}

	co := newConsumeOptions(opts...)
	autoAck := co.autoAcking()

	var wg sync.WaitGroup
	for range co.workers() {
		wg.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-m.done:
					return
				case env := <-q:
					msg := newMemoryMessage(env, func() { m.requeue(q, env) })
					//nolint:errcheck // deliver already settled the message
					_ = deliver(ctx, "memory", msg, handler, autoAck)
				}
			}
		})
	}
	wg.Wait()

	return ctx.Err()
}

func (m *Memory) requeue(q chan *memoryEnvelope, env *memoryEnvelope) {
	env.attempts++
	select {
	case q <- env:
	case <-m.done:
	default:
		// queue is full; hand it off so the consumer goroutine never blocks on itself
		go func() {
			select {
			case q <- env:
			case <-m.done:
			}
		}()
	}
}

func (m *Memory) queue(name string) (chan *memoryEnvelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, io.ErrClosedPipe
	}
	q, ok := m.queues[name]
	if !ok {
		q = make(chan *memoryEnvelope, m.size)
		m.queues[name] = q
	}
	return q, nil
}
