package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	nsq "github.com/nsqio/go-nsq"
)

var (
	// ErrNSQTopicRequired is returned for an empty topic.
	ErrNSQTopicRequired = errors.New("pkgmessage: nsq topic is required")
	// ErrNSQChannelRequired is returned by Consume when no channel or group is given.
	ErrNSQChannelRequired = errors.New("pkgmessage: nsq channel is required")
	// ErrNSQHandlerRequired is returned by Consume with a nil handler.
	ErrNSQHandlerRequired = errors.New("pkgmessage: nsq handler is required")
	// ErrNSQProducerAddrRequired is returned by Publish when no nsqd address is configured.
	ErrNSQProducerAddrRequired = errors.New("pkgmessage: nsq producer address is required")
	// ErrNSQConsumerAddrsRequired is returned by Consume when neither nsqd nor lookupd addresses are configured.
	ErrNSQConsumerAddrsRequired = errors.New("pkgmessage: nsq consumer nsqd/lookupd addresses are required")
)

// NSQConfig configures the NSQ driver. Either address list is enough for
// consuming, lookupd wins when both are set.
type NSQConfig struct {
	ProducerAddr         string
	ConsumerNSQDAddrs    []string
	ConsumerLookupdAddrs []string

	// ProducerConfig and ConsumerConfig default to nsq.NewConfig().
	ProducerConfig *nsq.Config
	ConsumerConfig *nsq.Config
}

// NSQ maps a queue onto a topic and a consumer group onto a channel.
type NSQ struct {
	producer *nsq.Producer
	cfg      NSQConfig

	mu        sync.Mutex
	consumers []*nsq.Consumer
	closed    bool
}

// NewNSQ prepares the producer; nsqd is only dialled on first publish.
func NewNSQ(cfg NSQConfig) (*NSQ, error) {
	if cfg.ProducerConfig == nil {
		cfg.ProducerConfig = nsq.NewConfig()
	}
	if cfg.ConsumerConfig == nil {
		cfg.ConsumerConfig = nsq.NewConfig()
	}
	cfg.ConsumerNSQDAddrs = slices.Clone(cfg.ConsumerNSQDAddrs)
	cfg.ConsumerLookupdAddrs = slices.Clone(cfg.ConsumerLookupdAddrs)

	n := &NSQ{cfg: cfg}
	if cfg.ProducerAddr == "" {
		return n, nil
	}

	p, err := nsq.NewProducer(cfg.ProducerAddr, cfg.ProducerConfig)
	if err != nil {
		return nil, fmt.Errorf("pkgmessage: nsq new producer: %w", err)
	}
	p.SetLoggerLevel(nsq.LogLevelError)
	n.producer = p

	return n, nil
}

func (n *NSQ) String() string {
	return fmt.Sprintf("nsq(producer=%s, nsqd=%v, lookupd=%v)", n.cfg.ProducerAddr, n.cfg.ConsumerNSQDAddrs, n.cfg.ConsumerLookupdAddrs)
}

// Close stops consumers first so in-flight messages are settled, then the producer.
func (n *NSQ) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	consumers := n.consumers
	n.consumers = nil
	n.mu.Unlock()

	for _, c := range consumers {
		stopNSQ(c)
	}
	if n.producer != nil {
		n.producer.Stop()
	}
	return nil
}

// Publish is the only driver honouring msg.Delay, through DPUB. Headers are
// dropped since NSQ messages are a bare body.
func (n *NSQ) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	switch {
	case ctx.Err() != nil:
		return PublishResult{}, ctx.Err()
	case destination == "":
		return PublishResult{}, ErrNSQTopicRequired
	case n.producer == nil:
		return PublishResult{}, ErrNSQProducerAddrRequired
	}

	var err error
	if msg.Delay > 0 {
		err = n.producer.DeferredPublish(destination, msg.Delay, msg.Body)
	} else {
		err = n.producer.Publish(destination, msg.Body)
	}
	if err != nil {
		return PublishResult{}, fmt.Errorf("pkgmessage: nsq publish: %w", err)
	}

	return PublishResult{Topic: destination, Timestamp: time.Now()}, nil
}

// Consume reads source on the channel given by WithChannel, the "channel" param or WithGroup.
func (n *NSQ) Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error {
	co := newConsumeOptions(opts...)
	channel := co.groupName(co.channel, "channel")

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case source == "":
		return ErrNSQTopicRequired
	case handler == nil:
		return ErrNSQHandlerRequired
	case channel == "":
		return ErrNSQChannelRequired
	case len(n.cfg.ConsumerNSQDAddrs) == 0 && len(n.cfg.ConsumerLookupdAddrs) == 0:
		return ErrNSQConsumerAddrsRequired
	}

	ccfg := *n.cfg.ConsumerConfig
	if co.maxInFlight > 0 {
		ccfg.MaxInFlight = co.maxInFlight
	}
	ccfg.MaxInFlight = max(ccfg.MaxInFlight, co.workers())

	consumer, err := nsq.NewConsumer(source, channel, &ccfg)
	if err != nil {
		return fmt.Errorf("pkgmessage: nsq new consumer: %w", err)
	}
	consumer.SetLoggerLevel(nsq.LogLevelError)

	autoAck := co.autoAcking()
	consumer.AddConcurrentHandlers(nsq.HandlerFunc(func(m *nsq.Message) error {
		// settling is ours, go-nsq must not FIN/REQ behind our back
		m.DisableAutoResponse()
		//nolint:errcheck // deliver already settled the message
		_ = deliver(ctx, "nsq", newNSQMessage(source, m), handler, autoAck)
		return nil
	}), co.workers())

	if err := n.track(consumer); err != nil {
		stopNSQ(consumer)
		return err
	}
	defer n.forget(consumer)

	if err := n.connect(consumer); err != nil {
		stopNSQ(consumer)
		return err
	}

	select {
	case <-ctx.Done():
		stopNSQ(consumer)
		return ctx.Err()
	case <-consumer.StopChan:
		return nil
	}
}

func (n *NSQ) connect(consumer *nsq.Consumer) error {
	if len(n.cfg.ConsumerLookupdAddrs) > 0 {
		if err := consumer.ConnectToNSQLookupds(n.cfg.ConsumerLookupdAddrs); err != nil {
			return fmt.Errorf("pkgmessage: nsq connect lookupd: %w", err)
		}
		return nil
	}

	if err := consumer.ConnectToNSQDs(n.cfg.ConsumerNSQDAddrs); err != nil {
		return fmt.Errorf("pkgmessage: nsq connect nsqd: %w", err)
	}
	return nil
}

func (n *NSQ) track(c *nsq.Consumer) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return io.ErrClosedPipe
	}
	n.consumers = append(n.consumers, c)
	return nil
}

func (n *NSQ) forget(c *nsq.Consumer) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.consumers = slices.DeleteFunc(n.consumers, func(x *nsq.Consumer) bool { return x == c })
}

func stopNSQ(c *nsq.Consumer) {
	c.Stop()
	<-c.StopChan
}
