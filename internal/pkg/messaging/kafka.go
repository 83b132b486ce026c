package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const kafkaMaxBytes = 10e6

var (
	// ErrKafkaTopicRequired is returned for an empty topic.
	ErrKafkaTopicRequired = errors.New("pkgmessage: kafka topic is required")
	// ErrKafkaHandlerRequired is returned by Consume with a nil handler.
	ErrKafkaHandlerRequired = errors.New("pkgmessage: kafka handler is required")
	// ErrKafkaBrokersRequired is returned by NewKafka without brokers.
	ErrKafkaBrokersRequired = errors.New("pkgmessage: kafka brokers are required")
	// ErrKafkaGroupRequired is returned by Consume without a group, offsets are
	// committed per group.
	ErrKafkaGroupRequired = errors.New("pkgmessage: kafka consumer group is required")
)

// KafkaConfig configures the Kafka driver.
type KafkaConfig struct {
	Brokers []string
	Dialer  *kafka.Dialer

	// WriterConfig and ReaderConfig are templates; topic and group are always
	// filled in per call.
	WriterConfig *kafka.WriterConfig
	ReaderConfig *kafka.ReaderConfig
}

// Kafka keeps one writer per topic and one reader per Consume call.
type Kafka struct {
	cfg KafkaConfig

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	readers []*kafka.Reader
	closed  bool
}

func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrKafkaBrokersRequired
	}
	cfg.Brokers = slices.Clone(cfg.Brokers)

	return &Kafka{cfg: cfg, writers: map[string]*kafka.Writer{}}, nil
}

func (k *Kafka) String() string {
	return fmt.Sprintf("kafka(brokers=%v)", k.cfg.Brokers)
}

// Close closes readers before writers and joins their errors.
func (k *Kafka) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	readers, writers := k.readers, slices.Collect(maps.Values(k.writers))
	k.readers, k.writers = nil, nil
	k.mu.Unlock()

	var err error
	for _, r := range readers {
		err = errors.Join(err, r.Close())
	}
	for _, w := range writers {
		err = errors.Join(err, w.Close())
	}
	return err
}

func (k *Kafka) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	switch {
	case ctx.Err() != nil:
		return PublishResult{}, ctx.Err()
	case destination == "":
		return PublishResult{}, ErrKafkaTopicRequired
	case msg.Delay > 0:
		return PublishResult{}, ErrUnsupported
	}

	w, err := k.writer(destination)
	if err != nil {
		return PublishResult{}, err
	}

	out := kafka.Message{Key: msg.Key, Value: msg.Body, Time: time.Now()}
	for _, h := range msg.Headers {
		if h.Key != "" {
			out.Headers = append(out.Headers, kafka.Header{Key: h.Key, Value: h.Value})
		}
	}

	if err := w.WriteMessages(ctx, out); err != nil {
		return PublishResult{}, fmt.Errorf("pkgmessage: kafka publish: %w", err)
	}

	return PublishResult{Topic: destination, Timestamp: out.Time}, nil
}

// Consume joins the group from WithGroup (or the "group" param) on topic
// source. Ack commits the offset, Nack leaves it for the next rebalance.
func (k *Kafka) Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error {
	co := newConsumeOptions(opts...)
	group := co.groupName("", "group")

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case source == "":
		return ErrKafkaTopicRequired
	case handler == nil:
		return ErrKafkaHandlerRequired
	case group == "":
		return ErrKafkaGroupRequired
	}

	if k.isClosed() {
		return io.ErrClosedPipe
	}

	reader := kafka.NewReader(k.readerConfig(source, group))
	if err := k.track(reader); err != nil {
		return errors.Join(err, reader.Close())
	}
	defer k.forget(reader)

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	autoAck := co.autoAcking()
	inbox := make(chan kafka.Message)

	var wg sync.WaitGroup
	for range co.workers() {
		wg.Go(func() {
			for m := range inbox {
				//nolint:errcheck // deliver already settled the message
				_ = deliver(ctx, "kafka", newKafkaMessage(reader, m), handler, autoAck)
			}
		})
	}

	ferr := kafkaFetch(fetchCtx, reader, inbox)
	close(inbox)
	wg.Wait()

	cerr := reader.Close()
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(ferr, io.EOF):
		// reader closed by Close
		return nil
	case ferr != nil:
		return errors.Join(fmt.Errorf("pkgmessage: kafka consume: %w", ferr), cerr)
	default:
		return cerr
	}
}

func kafkaFetch(ctx context.Context, reader *kafka.Reader, inbox chan<- kafka.Message) error {
	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		select {
		case inbox <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (k *Kafka) writer(topic string) (*kafka.Writer, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil, io.ErrClosedPipe
	}
	if w, ok := k.writers[topic]; ok {
		return w, nil
	}

	var cfg kafka.WriterConfig
	if k.cfg.WriterConfig != nil {
		cfg = *k.cfg.WriterConfig
	}
	cfg.Topic = topic
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = k.cfg.Brokers
	}
	if cfg.Dialer == nil {
		cfg.Dialer = k.cfg.Dialer
	}
	if cfg.Balancer == nil {
		cfg.Balancer = &kafka.LeastBytes{}
	}

	w := kafka.NewWriter(cfg)
	k.writers[topic] = w
	return w, nil
}

func (k *Kafka) readerConfig(topic, group string) kafka.ReaderConfig {
	var cfg kafka.ReaderConfig
	if k.cfg.ReaderConfig != nil {
		cfg = *k.cfg.ReaderConfig
	}
	cfg.Topic = topic
	cfg.GroupID = group
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = k.cfg.Brokers
	}
	if cfg.Dialer == nil {
		cfg.Dialer = k.cfg.Dialer
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = kafkaMaxBytes
	}
	return cfg
}

func (k *Kafka) isClosed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.closed
}

func (k *Kafka) track(r *kafka.Reader) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return io.ErrClosedPipe
	}
	k.readers = append(k.readers, r)
	return nil
}

func (k *Kafka) forget(r *kafka.Reader) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.readers = slices.DeleteFunc(k.readers, func(x *kafka.Reader) bool { return x == r })
}
