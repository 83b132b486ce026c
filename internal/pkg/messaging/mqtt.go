package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var (
	// ErrMQTTBrokerRequired is returned when the broker address is missing.
	ErrMQTTBrokerRequired = errors.New("pkgmessage: mqtt broker is required")
	// ErrMQTTTopicRequired is returned when the topic is empty.
	ErrMQTTTopicRequired = errors.New("pkgmessage: mqtt topic is required")
	// ErrMQTTHandlerRequired is returned when Consume is called with a nil handler.
	ErrMQTTHandlerRequired = errors.New("pkgmessage: mqtt handler is required")
)

// MQTTConfig configures the MQTT implementation.
type MQTTConfig struct {
	// Broker is the broker address, e.g. tcp://localhost:1883.
	Broker   string
	ClientID string
	Username string
	Password string

	// QoS is used for publish and subscribe. Values above 2 are clamped.
	QoS byte

	// KeepAlive defaults to 60 seconds.
	KeepAlive time.Duration
}

// MQTT is a messaging implementation backed by an MQTT 3.1.1 broker.
//
// A consumer group becomes a shared subscription ($share/<group>/<topic>) so
// each message reaches one member of the group. MQTT 3.1.1 carries no headers;
// only the body travels.
type MQTT struct {
	client mqtt.Client
	broker string
	qos    byte

	mu     sync.Mutex
	topics []string
	closed bool
}

// NewMQTT connects to the broker.
func NewMQTT(ctx context.Context, cfg MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, ErrMQTTBrokerRequired
	}

	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 60 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(keepAlive)
	opts.SetOrderMatters(false)
	opts.SetAutoAckDisabled(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	})

	client := mqtt.NewClient(opts)
	if err := waitMQTTToken(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("pkgmessage: mqtt connect: %w", err)
	}

	return &MQTT{
		client: client,
		broker: cfg.Broker,
		qos:    min(cfg.QoS, 2),
	}, nil
}

// String describes the MQTT connection without credentials.
func (m *MQTT) String() string {
	return fmt.Sprintf("mqtt(broker=%s, qos=%d)", redactURL(m.broker), m.qos)
}

// Close unsubscribes every consumer and disconnects.
func (m *MQTT) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	topics := append([]string{}, m.topics...)
	m.mu.Unlock()

	var closeErr error
	if len(topics) > 0 {
		tok := m.client.Unsubscribe(topics...)
		if tok.WaitTimeout(time.Second) && tok.Error() != nil {
			closeErr = fmt.Errorf("pkgmessage: mqtt unsubscribe: %w", tok.Error())
		}
	}
	m.client.Disconnect(250)
	return closeErr
}

// Publish sends a message to an MQTT topic and waits for the broker acknowledgement of the QoS level.
func (m *MQTT) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}
	if destination == "" {
		return PublishResult{}, ErrMQTTTopicRequired
	}
	if msg.Delay > 0 {
		return PublishResult{}, ErrUnsupported
	}
	if err := m.ensureOpen(); err != nil {
		return PublishResult{}, err
	}

	if err := waitMQTTToken(ctx, m.client.Publish(destination, m.qos, false, msg.Body)); err != nil {
		return PublishResult{}, fmt.Errorf("pkgmessage: mqtt publish: %w", err)
	}

	return PublishResult{
		Topic:     destination,
		Timestamp: time.Now(),
	}, nil
}

// Consume subscribes to the topic until ctx is canceled.
func (m *MQTT) Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if source == "" {
		return ErrMQTTTopicRequired
	}
	if handler == nil {
		return ErrMQTTHandlerRequired
	}
	if err := m.ensureOpen(); err != nil {
		return err
	}

	co := newConsumeOptions(opts...)
	autoAck := co.autoAcking()
	filter := mqttFilter(source, co.groupName("", "share_group"))

	// msgCh is never closed: the client may still run a callback after Unsubscribe returns.
	msgCh := make(chan mqtt.Message, co.workers())
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for range co.workers() {
		wg.Go(func() {
			for {
				var msg mqtt.Message
				select {
				case <-stop:
					return
				case msg = <-msgCh:
				}

				//nolint:errcheck // mqtt has no negative ack
				_ = deliver(ctx, "mqtt", newMQTTMessage(msg, time.Now()), handler, autoAck)
			}
		})
	}

	tok := m.client.Subscribe(filter, m.qos, func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case msgCh <- msg:
		case <-stop:
		}
	})
	if err := waitMQTTToken(ctx, tok); err != nil {
		close(stop)
		wg.Wait()
		return fmt.Errorf("pkgmessage: mqtt subscribe: %w", err)
	}
	m.addTopic(filter)

	<-ctx.Done()

	var uerr error
	utok := m.client.Unsubscribe(filter)
	if utok.WaitTimeout(time.Second) && utok.Error() != nil {
		uerr = fmt.Errorf("pkgmessage: mqtt unsubscribe: %w", utok.Error())
	}
	close(stop)
	wg.Wait()

	return errors.Join(ctx.Err(), uerr)
}

func (m *MQTT) addTopic(filter string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.topics = append(m.topics, filter)
}

func (m *MQTT) ensureOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	return nil
}

func mqttFilter(topic, group string) string {
	if group == "" {
		return topic
	}
	return "$share/" + group + "/" + topic
}

func waitMQTTToken(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
