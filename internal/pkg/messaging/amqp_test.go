package messaging

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeAMQPChannel closes itself on a failing declare, the way the broker
// closes a channel after a 406 PRECONDITION_FAILED.
type fakeAMQPChannel struct {
	declareErr error
	closed     bool
	declares   int
	published  []string
}

func (c *fakeAMQPChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if c.closed {
		return amqp.Queue{}, amqp.ErrClosed
	}
	c.declares++
	if c.declareErr != nil {
		c.closed = true
		return amqp.Queue{}, c.declareErr
	}
	return amqp.Queue{Name: name}, nil
}

func (c *fakeAMQPChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, _ amqp.Publishing) error {
	if c.closed {
		return amqp.ErrClosed
	}
	c.published = append(c.published, key)
	return nil
}

func (c *fakeAMQPChannel) IsClosed() bool { return c.closed }

func (c *fakeAMQPChannel) Close() error {
	c.closed = true
	return nil
}

func newFakeAMQP(first *fakeAMQPChannel, next ...*fakeAMQPChannel) (*AMQP, *int) {
	opened := 0
	a := &AMQP{pubCh: first, declared: map[string]struct{}{}}
	a.openPubCh = func() (amqpPublishChannel, error) {
		if opened >= len(next) {
			return nil, errors.New("connection refused")
		}
		opened++
		return next[opened-1], nil
	}
	return a, &opened
}

func TestAMQP_PublishReopensClosedChannel(t *testing.T) {
	precondition := &amqp.Error{Code: amqp.PreconditionFailed, Reason: "inequivalent arg 'durable'"}

	tests := []struct {
		name       string
		first      *fakeAMQPChannel
		wantFirst  error
		wantOpened int
	}{
		{
			name:       "channel already closed",
			first:      &fakeAMQPChannel{closed: true},
			wantOpened: 1,
		},
		{
			name:       "declare closes the channel",
			first:      &fakeAMQPChannel{declareErr: precondition},
			wantFirst:  precondition,
			wantOpened: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			second := &fakeAMQPChannel{}
			a, opened := newFakeAMQP(tt.first, second)
			ctx := context.Background()

			_, err := a.Publish(ctx, "testQueue", OutgoingMessage{Body: []byte("Ohai!")})
			if tt.wantFirst != nil {
				if !errors.Is(err, tt.wantFirst) {
					t.Fatalf("first Publish() error = %v, want %v", err, tt.wantFirst)
				}
				if _, err = a.Publish(ctx, "testQueue", OutgoingMessage{Body: []byte("Ohai!")}); err != nil {
					t.Fatalf("second Publish() error = %v", err)
				}
			} else if err != nil {
				t.Fatalf("Publish() error = %v", err)
			}

			if *opened != tt.wantOpened {
				t.Fatalf("channels opened = %d, want %d", *opened, tt.wantOpened)
			}
			if len(second.published) != 1 || second.published[0] != "testQueue" {
				t.Fatalf("published on new channel = %v, want [testQueue]", second.published)
			}
			if second.declares != 1 {
				t.Fatalf("declares on new channel = %d, want 1", second.declares)
			}
		})
	}
}

func TestAMQP_PublishKeepsOpenChannel(t *testing.T) {
	first := &fakeAMQPChannel{}
	a, opened := newFakeAMQP(first)

	for range 3 {
		if _, err := a.Publish(context.Background(), "testQueue", OutgoingMessage{Body: []byte("Ohai!")}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if *opened != 0 {
		t.Fatalf("channels opened = %d, want 0", *opened)
	}
	if first.declares != 1 || len(first.published) != 3 {
		t.Fatalf("declares = %d, published = %d, want 1 and 3", first.declares, len(first.published))
	}
}

func TestAMQP_PublishReopenFails(t *testing.T) {
	a, _ := newFakeAMQP(&fakeAMQPChannel{closed: true})

	if _, err := a.Publish(context.Background(), "testQueue", OutgoingMessage{}); err == nil {
		t.Fatal("Publish() error = nil, want reopen failure")
	}

	second := &fakeAMQPChannel{}
	a.openPubCh = func() (amqpPublishChannel, error) { return second, nil }
	if _, err := a.Publish(context.Background(), "testQueue", OutgoingMessage{}); err != nil {
		t.Fatalf("Publish() after broker recovered error = %v", err)
	}
	if len(second.published) != 1 {
		t.Fatalf("published = %v, want one message", second.published)
	}
}
