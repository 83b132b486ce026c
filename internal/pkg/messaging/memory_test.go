package messaging

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func startMemoryConsumer(ctx context.Context, t *testing.T, m *Memory, source string, h Handler, opts ...ConsumeOption) <-chan error {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- m.Consume(ctx, source, h, opts...) }()
	return done
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()

	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
		return nil
	}
}

func TestMemory_PublishConsume(t *testing.T) {
	m := NewMemory(MemoryConfig{})
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Message, 1)
	done := startMemoryConsumer(ctx, t, m, "testQueue", func(_ context.Context, msg Message) error {
		got <- msg
		return nil
	}, WithAutoAck(true))

	res, err := m.Publish(context.Background(), "testQueue", OutgoingMessage{
		Body:    []byte("Ohai!"),
		Headers: []Header{{Key: "cID", Value: []byte("abc")}},
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if res.MessageID == "" || res.Topic != "testQueue" {
		t.Fatalf("Publish() result = %+v", res)
	}

	select {
	case msg := <-got:
		if string(msg.Body()) != "Ohai!" {
			t.Fatalf("Body() = %q", msg.Body())
		}
		if msg.ID() != res.MessageID {
			t.Fatalf("ID() = %q, want %q", msg.ID(), res.MessageID)
		}
		if msg.Attributes()["cID"] != "abc" {
			t.Fatalf("Attributes() = %v", msg.Attributes())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	if err := waitErr(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("Consume() error = %v, want context.Canceled", err)
	}
	if n := m.Len("testQueue"); n != 0 {
		t.Fatalf("Len() = %d, want 0", n)
	}
}

func TestMemory_CompetingConsumers(t *testing.T) {
	const total = 200

	m := NewMemory(MemoryConfig{QueueSize: total})
	defer m.Close()

	for range total {
		if _, err := m.Publish(context.Background(), "testQueue", OutgoingMessage{Body: []byte("Ohai!")}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	wg.Add(total)
	done := startMemoryConsumer(ctx, t, m, "testQueue", func(_ context.Context, msg Message) error {
		mu.Lock()
		seen[msg.ID()]++
		mu.Unlock()
		wg.Done()
		return nil
	}, WithConcurrency(4), WithAutoAck(true))

	wg.Wait()
	cancel()
	waitErr(t, done)

	if len(seen) != total {
		t.Fatalf("distinct messages = %d, want %d", len(seen), total)
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("message %s delivered %d times", id, n)
		}
	}
}

func TestMemory_NackRequeues(t *testing.T) {
	m := NewMemory(MemoryConfig{})
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int
	delivered := make(chan map[string]any, 1)
	done := startMemoryConsumer(ctx, t, m, "testQueue", func(_ context.Context, msg Message) error {
		calls++
		if calls == 1 {
			return errors.New("boom")
		}
		delivered <- msg.(MetadataCarrier).Metadata()
		return nil
	}, WithAutoAck(true))

	if _, err := m.Publish(context.Background(), "testQueue", OutgoingMessage{Body: []byte("Ohai!")}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case md := <-delivered:
		if md["attempts"] != 1 {
			t.Fatalf("attempts = %v, want 1", md["attempts"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message was not redelivered")
	}

	cancel()
	waitErr(t, done)
}

func TestMemory_HandlerPanicIsNacked(t *testing.T) {
	m := NewMemory(MemoryConfig{})
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int
	ok := make(chan struct{})
	done := startMemoryConsumer(ctx, t, m, "testQueue", func(context.Context, Message) error {
		calls++
		if calls == 1 {
			panic("handler bug")
		}
		close(ok)
		return nil
	}, WithAutoAck(true))

	if _, err := m.Publish(context.Background(), "testQueue", OutgoingMessage{Body: []byte("x")}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-ok:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not redelivered after panic")
	}

	cancel()
	waitErr(t, done)
}

func TestMemory_QueueNameMismatch(t *testing.T) {
	m := NewMemory(MemoryConfig{})
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var received int
	done := startMemoryConsumer(ctx, t, m, "otherQueue", func(context.Context, Message) error {
		received++
		return nil
	}, WithAutoAck(true))

	if _, err := m.Publish(context.Background(), "testQueue", OutgoingMessage{Body: []byte("Ohai!")}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if err := waitErr(t, done); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Consume() error = %v", err)
	}
	if received != 0 {
		t.Fatalf("received = %d, want 0", received)
	}
	if n := m.Len("testQueue"); n != 1 {
		t.Fatalf("Len(testQueue) = %d, want 1", n)
	}
}

func TestMemory_Close(t *testing.T) {
	m := NewMemory(MemoryConfig{})

	done := startMemoryConsumer(context.Background(), t, m, "testQueue", func(context.Context, Message) error {
		return nil
	})

	// give the consumer a moment to block
	time.Sleep(20 * time.Millisecond)

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := waitErr(t, done); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("Consume() after Close error = %v", err)
	}

	_, err := m.Publish(context.Background(), "testQueue", OutgoingMessage{Body: []byte("x")})
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("Publish() after Close error = %v, want io.ErrClosedPipe", err)
	}
}

func TestMemory_Validation(t *testing.T) {
	m := NewMemory(MemoryConfig{})
	defer m.Close()

	ctx := context.Background()
	noop := func(context.Context, Message) error { return nil }

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{
			name: "publish empty queue",
			run: func() error {
				_, err := m.Publish(ctx, "", OutgoingMessage{})
				return err
			},
			want: ErrMemoryQueueRequired,
		},
		{
			name: "publish delayed",
			run: func() error {
				_, err := m.Publish(ctx, "q", OutgoingMessage{Delay: time.Second})
				return err
			},
			want: ErrUnsupported,
		},
		{
			name: "consume empty queue",
			run:  func() error { return m.Consume(ctx, "", noop) },
			want: ErrMemoryQueueRequired,
		},
		{
			name: "consume nil handler",
			run:  func() error { return m.Consume(ctx, "q", nil) },
			want: ErrMemoryHandlerRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}
