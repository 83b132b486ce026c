package messaging

import "strconv"

type consumeOptions struct {
	concurrency int
	autoAck     bool
	maxInFlight int

	// group is the generic competing-consumer name. The driver specific
	// names below override it for their own broker.
	group        string
	channel      string // NSQ
	queueGroup   string // NATS
	subscription string // Pub/Sub

	// params holds driver specific knobs such as "prefetch" or "auto_ack".
	params map[string]string
}

// ConsumeOption configures a Consume call.
type ConsumeOption func(*consumeOptions)

func newConsumeOptions(opts ...ConsumeOption) consumeOptions {
	var co consumeOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&co)
		}
	}
	return co
}

// workers is the number of handler goroutines, at least one.
func (co consumeOptions) workers() int {
	if co.concurrency <= 0 {
		return 1
	}
	return co.concurrency
}

// autoAcking reports whether handlers' results settle messages. The "auto_ack"
// param overrides WithAutoAck when it parses as a bool.
func (co consumeOptions) autoAcking() bool {
	if v, ok := co.params["auto_ack"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return co.autoAck
}

// groupName picks the consumer group for a driver: its own option first,
// then its param, then the generic group.
func (co consumeOptions) groupName(specific, param string) string {
	if specific != "" {
		return specific
	}
	if v := co.params[param]; v != "" {
		return v
	}
	return co.group
}

// WithConcurrency sets how many handler goroutines run per Consume call.
func WithConcurrency(n int) ConsumeOption {
	return func(o *consumeOptions) { o.concurrency = n }
}

// WithAutoAck makes Consume ack on a nil handler error and nack otherwise.
func WithAutoAck(autoAck bool) ConsumeOption {
	return func(o *consumeOptions) { o.autoAck = autoAck }
}

// WithMaxInFlight caps unacknowledged deliveries (NSQ max-in-flight, AMQP prefetch,
// Pub/Sub max outstanding).
func WithMaxInFlight(n int) ConsumeOption {
	return func(o *consumeOptions) { o.maxInFlight = n }
}

// WithGroup names the competing-consumer group. Every driver maps it onto its
// own concept: Kafka group, NSQ channel, NATS queue group, Pub/Sub subscription,
// MQTT shared subscription, Redis/AMQP consumer tag.
func WithGroup(group string) ConsumeOption {
	return func(o *consumeOptions) { o.group = group }
}

// WithChannel overrides the NSQ channel.
func WithChannel(channel string) ConsumeOption {
	return func(o *consumeOptions) { o.channel = channel }
}

// WithQueueGroup overrides the NATS queue group.
func WithQueueGroup(queueGroup string) ConsumeOption {
	return func(o *consumeOptions) { o.queueGroup = queueGroup }
}

// WithSubscription overrides the Pub/Sub subscription.
func WithSubscription(subscription string) ConsumeOption {
	return func(o *consumeOptions) { o.subscription = subscription }
}

// WithParam sets one driver specific parameter. Empty keys are ignored.
func WithParam(key, value string) ConsumeOption {
	return func(o *consumeOptions) {
		if key == "" {
			return
		}
		if o.params == nil {
			o.params = map[string]string{}
		}
		o.params[key] = value
	}
}
