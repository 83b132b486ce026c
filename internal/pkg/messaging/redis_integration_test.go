package messaging

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func newRedisContainer(t *testing.T) string {
	t.Helper()

	if os.Getenv("QUEUETICK_INTEGRATION") != "true" {
		t.Skip("set QUEUETICK_INTEGRATION=true to run broker integration tests")
	}

	ctx := context.Background()
	c, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, c)
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}

	url, err := c.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("redis connection string: %v", err)
	}
	return url
}

func TestRedis_Integration_PublishConsume(t *testing.T) {
	url := newRedisContainer(t)

	r, err := NewRedis(RedisConfig{URL: url, Prefix: "queuetick", PollTimeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewRedis() error = %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- r.Consume(ctx, "testQueue", func(_ context.Context, msg Message) error {
			got <- msg
			return nil
		}, WithGroup("testQueue_logger"), WithAutoAck(true))
	}()

	res, err := r.Publish(context.Background(), "testQueue", OutgoingMessage{
		Body:    []byte("Ohai!"),
		Headers: []Header{{Key: "msg_id", Value: []byte("42")}},
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if res.MessageID != "42" {
		t.Fatalf("MessageID = %q, want 42", res.MessageID)
	}

	select {
	case msg := <-got:
		if string(msg.Body()) != "Ohai!" {
			t.Fatalf("Body() = %q", msg.Body())
		}
		if msg.ID() != "42" {
			t.Fatalf("ID() = %q", msg.ID())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Consume() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}

	active := r.activeKey("testQueue", "testQueue_logger")
	n, err := r.client.LLen(context.Background(), active).Result()
	if err != nil {
		t.Fatalf("LLen() error = %v", err)
	}
	if n != 0 {
		t.Fatalf("active list length = %d, want 0", n)
	}
}

func TestRedis_Integration_RequeuesLeftovers(t *testing.T) {
	url := newRedisContainer(t)

	r, err := NewRedis(RedisConfig{URL: url, PollTimeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewRedis() error = %v", err)
	}
	defer r.Close()

	bg := context.Background()
	active := r.activeKey("testQueue", "g")
	if err := r.client.LPush(bg, active, `{"id":"left","body":"T2hhaSE="}`).Err(); err != nil {
		t.Fatalf("seed active list: %v", err)
	}

	ctx, cancel := context.WithCancel(bg)
	defer cancel()

	got := make(chan string, 1)
	go func() {
		_ = r.Consume(ctx, "testQueue", func(_ context.Context, msg Message) error {
			got <- msg.ID() + ":" + string(msg.Body())
			return nil
		}, WithGroup("g"), WithAutoAck(true))
	}()

	select {
	case v := <-got:
		if v != "left:Ohai!" {
			t.Fatalf("got %q, want left:Ohai!", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("leftover was not requeued")
	}
}

func TestRedis_Integration_SilentConsumersOnly(t *testing.T) {
	url := newRedisContainer(t)

	r, err := NewRedis(RedisConfig{URL: url, PollTimeout: 200 * time.Millisecond, InstanceID: "fresh"})
	if err != nil {
		t.Fatalf("NewRedis() error = %v", err)
	}
	defer r.Close()

	bg := context.Background()
	busy := r.key("testQueue", "g", "busy", "active")
	silent := r.key("testQueue", "g", "silent", "active")
	if err := r.client.LPush(bg, busy, `{"id":"busy","body":"T2hhaSE="}`).Err(); err != nil {
		t.Fatalf("seed busy list: %v", err)
	}
	if err := r.client.Set(bg, aliveKey(busy), "busy", time.Minute).Err(); err != nil {
		t.Fatalf("claim busy list: %v", err)
	}
	if err := r.client.LPush(bg, silent, `{"id":"silent","body":"T2hhaSE="}`).Err(); err != nil {
		t.Fatalf("seed silent list: %v", err)
	}

	ctx, cancel := context.WithCancel(bg)
	defer cancel()

	got := make(chan string, 2)
	done := make(chan error, 1)
	go func() {
		done <- r.Consume(ctx, "testQueue", func(_ context.Context, msg Message) error {
			got <- msg.ID()
			return nil
		}, WithGroup("g"), WithAutoAck(true))
	}()

	select {
	case id := <-got:
		if id != "silent" {
			t.Fatalf("got %q, want silent", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("silent consumer's message was not requeued")
	}

	select {
	case id := <-got:
		t.Fatalf("got %q from a live consumer's list", id)
	case <-time.After(500 * time.Millisecond):
	}

	if n, err := r.client.LLen(bg, busy).Result(); err != nil || n != 1 {
		t.Fatalf("busy list length = %d (%v), want 1", n, err)
	}
	if n, err := r.client.Exists(bg, aliveKey(r.activeKey("testQueue", "g"))).Result(); err != nil || n != 1 {
		t.Fatalf("own alive key exists = %d (%v), want 1", n, err)
	}

	cancel()
	<-done
	if n, err := r.client.Exists(bg, aliveKey(r.activeKey("testQueue", "g"))).Result(); err != nil || n != 0 {
		t.Fatalf("alive key after stop = %d (%v), want 0", n, err)
	}
}
