package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

var (
	// ErrNATSURLRequired is returned by NewNATS without a server URL.
	ErrNATSURLRequired = errors.New("pkgmessage: nats url is required")
	// ErrNATSSubjectRequired is returned for an empty subject.
	ErrNATSSubjectRequired = errors.New("pkgmessage: nats subject is required")
	// ErrNATSHandlerRequired is returned by Consume with a nil handler.
	ErrNATSHandlerRequired = errors.New("pkgmessage: nats handler is required")
)

// NATSConfig configures the NATS driver.
type NATSConfig struct {
	URL     string
	Options []nats.Option
}

// NATS maps a queue onto a subject. Consumers in the same group share a NATS
// queue group, so each message reaches one of them.
type NATS struct {
	conn *nats.Conn
	url  string

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed bool
}

// NewNATS connects to cfg.URL.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.URL == "" {
		return nil, ErrNATSURLRequired
	}

	conn, err := nats.Connect(cfg.URL, cfg.Options...)
	if err != nil {
		return nil, fmt.Errorf("pkgmessage: nats connect: %w", err)
	}

	return &NATS{conn: conn, url: cfg.URL}, nil
}

func (n *NATS) String() string {
	return fmt.Sprintf("nats(url=%s)", redactURL(n.url))
}

// Close drains every subscription, then the connection.
func (n *NATS) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	subs := n.subs
	n.subs = nil
	n.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		errs = append(errs, ignoreNATSClosed(sub.Drain()))
	}
	errs = append(errs, ignoreNATSClosed(n.conn.Drain()))
	n.conn.Close()

	return errors.Join(errs...)
}

// Publish sends msg on subject destination and flushes, so a nil error means
// the server has it.
func (n *NATS) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	switch {
	case ctx.Err() != nil:
		return PublishResult{}, ctx.Err()
	case destination == "":
		return PublishResult{}, ErrNATSSubjectRequired
	case msg.Delay > 0:
		return PublishResult{}, ErrUnsupported
	}

	out := nats.NewMsg(destination)
	out.Data = msg.Body
	for _, h := range msg.Headers {
		if h.Key != "" {
			out.Header.Add(h.Key, string(h.Value))
		}
	}

	if err := n.conn.PublishMsg(out); err != nil {
		return PublishResult{}, fmt.Errorf("pkgmessage: nats publish: %w", err)
	}
	// The message is buffered now, a failed flush cannot tell whether it went out.
	if err := n.flush(ctx); err != nil {
		return PublishResult{}, fmt.Errorf("%w: nats flush: %w", ErrUnconfirmed, err)
	}

	return PublishResult{Topic: destination, Timestamp: time.Now()}, nil
}

// Consume queue-subscribes to source. The group comes from WithQueueGroup, the
// "queue_group" param or WithGroup; with none every consumer gets every message.
func (n *NATS) Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case source == "":
		return ErrNATSSubjectRequired
	case handler == nil:
		return ErrNATSHandlerRequired
	}

	co := newConsumeOptions(opts...)
	autoAck := co.autoAcking()
	inbox := make(chan *nats.Msg, co.workers())
	stop := make(chan struct{})

	sub, err := n.conn.QueueSubscribe(source, co.groupName(co.queueGroup, "queue_group"), func(m *nats.Msg) {
		select {
		case inbox <- m:
		case <-stop:
		}
	})
	if err != nil {
		return fmt.Errorf("pkgmessage: nats subscribe: %w", err)
	}

	var wg sync.WaitGroup
	for range co.workers() {
		wg.Go(func() {
			for {
				select {
				case <-stop:
					return
				case m := <-inbox:
					//nolint:errcheck // deliver already settled the message
					_ = deliver(ctx, "nats", newNATSMessage(m), handler, autoAck)
				}
			}
		})
	}

	shutdown := func() error {
		uerr := ignoreNATSClosed(sub.Unsubscribe())
		close(stop)
		wg.Wait()
		n.forget(sub)
		return uerr
	}

	if err := n.track(sub); err != nil {
		return errors.Join(err, shutdown())
	}
	if err := n.flush(ctx); err != nil {
		return errors.Join(fmt.Errorf("pkgmessage: nats flush: %w", err), shutdown())
	}

	<-ctx.Done()
	return errors.Join(ctx.Err(), shutdown())
}

// flush waits for the server to process everything sent so far.
func (n *NATS) flush(ctx context.Context) error {
	ctx, cancel := flushContext(ctx)
	defer cancel()
	return n.conn.FlushWithContext(ctx)
}

// flushContext gives ctx a deadline when it has none, FlushWithContext refuses
// to wait forever.
func flushContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, nats.DefaultTimeout)
}

func (n *NATS) track(sub *nats.Subscription) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return io.ErrClosedPipe
	}
	n.subs = append(n.subs, sub)
	return nil
}

func (n *NATS) forget(sub *nats.Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.subs = slices.DeleteFunc(n.subs, func(s *nats.Subscription) bool { return s == sub })
}

func ignoreNATSClosed(err error) error {
	if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
		return nil
	}
	return err
}
