package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"
)

// DefaultRedisPollTimeout bounds each blocking pop so consumers notice cancellation.
const DefaultRedisPollTimeout = 2 * time.Second

// redisAliveTTL is how long an active list stays claimed without a heartbeat.
// Lists of consumers silent for longer are requeued by the others.
const redisAliveTTL = 30 * time.Second

var (
	// ErrRedisURLRequired is returned when neither a URL nor a client is configured.
	ErrRedisURLRequired = errors.New("pkgmessage: redis url is required")
	// ErrRedisQueueRequired is returned when the queue name is empty.
	ErrRedisQueueRequired = errors.New("pkgmessage: redis queue is required")
	// ErrRedisHandlerRequired is returned when Consume is called with a nil handler.
	ErrRedisHandlerRequired = errors.New("pkgmessage: redis handler is required")
)

// RedisConfig configures the Redis list-queue implementation.
type RedisConfig struct {
	// URL is a redis:// or rediss:// address.
	URL string

	// Client is used instead of URL when set. Close does not close it.
	Client *redis.Client

	// Prefix namespaces every key. Empty means no prefix.
	Prefix string

	// PollTimeout is the blocking pop timeout. Defaults to DefaultRedisPollTimeout.
	PollTimeout time.Duration

	// InstanceID names this process in active list keys. Defaults to
	// <hostname>-<pid>. Keep it stable across restarts to pick up leftovers
	// at once instead of after redisAliveTTL.
	InstanceID string
}

// Redis is a reliable queue on Redis lists.
//
// Publish pushes onto <prefix>:<queue>:pending. A consumer atomically moves a
// message onto its own <prefix>:<queue>:<group>:<instance>:active list and
// removes it there on ack. While consuming it refreshes <active>:alive; once
// that key expires any consumer of the group moves the list back to pending.
type Redis struct {
	client      *redis.Client
	ownsClient  bool
	prefix      string
	pollTimeout time.Duration
	instance    string
	seq         *atomic.Uint64

	mu     sync.Mutex
	closed bool
}

type redisEnvelope struct {
	ID          string            `json:"id"`
	Body        []byte            `json:"body"`
	Key         []byte            `json:"key,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	PublishedAt time.Time         `json:"published_at"`
}

// NewRedis constructs a Redis messaging client.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	client := cfg.Client
	owns := false
	if client == nil {
		if cfg.URL == "" {
			return nil, ErrRedisURLRequired
		}
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("pkgmessage: redis parse url: %w", err)
		}
		client = redis.NewClient(opts)
		owns = true
	}

	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = DefaultRedisPollTimeout
	}

	instance := cfg.InstanceID
	if instance == "" {
		instance = defaultRedisInstance()
	}

	return &Redis{
		client:      client,
		ownsClient:  owns,
		prefix:      cfg.Prefix,
		pollTimeout: pollTimeout,
		instance:    instance,
		seq:         atomic.NewUint64(0),
	}, nil
}

func defaultRedisInstance() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	return hostname + "-" + strconv.Itoa(os.Getpid())
}

// String describes the Redis connection without credentials.
func (r *Redis) String() string {
	opts := r.client.Options()
	return fmt.Sprintf("redis(addr=%s, db=%d, prefix=%q)", opts.Addr, opts.DB, r.prefix)
}

// Close closes the underlying client when it was created by NewRedis.
func (r *Redis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if !r.ownsClient {
		return nil
	}
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("pkgmessage: redis close: %w", err)
	}
	return nil
}

// Publish pushes a message onto the pending list of the queue.
func (r *Redis) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}
	if destination == "" {
		return PublishResult{}, ErrRedisQueueRequired
	}
	if msg.Delay > 0 {
		return PublishResult{}, ErrUnsupported
	}
	if err := r.ensureOpen(); err != nil {
		return PublishResult{}, err
	}

	env := redisEnvelope{
		ID:          r.nextID(msg.Headers),
		Body:        msg.Body,
		Key:         msg.Key,
		Headers:     mergeAttributes(msg.Headers, msg.Attributes),
		PublishedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return PublishResult{}, fmt.Errorf("pkgmessage: redis encode: %w", err)
	}

	if err := r.client.LPush(ctx, r.pendingKey(destination), raw).Err(); err != nil {
		return PublishResult{}, fmt.Errorf("pkgmessage: redis publish: %w", err)
	}

	return PublishResult{
		MessageID: env.ID,
		Topic:     destination,
		Timestamp: env.PublishedAt,
	}, nil
}

// Consume moves messages from the pending list to this consumer's active list
// and hands them to handler until ctx is canceled.
func (r *Redis) Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if source == "" {
		return ErrRedisQueueRequired
	}
	if handler == nil {
		return ErrRedisHandlerRequired
	}
	if err := r.ensureOpen(); err != nil {
		return err
	}

	co := newConsumeOptions(opts...)
	workers := co.workers()
	autoAck := co.autoAcking()
	group := co.groupName("", "group")
	pending := r.pendingKey(source)
	active := r.activeKey(source, group)

	// Leftovers under our own name come from a previous run of this instance.
	if err := r.requeueActive(ctx, active, pending); err != nil {
		return err
	}
	if err := r.heartbeat(ctx, source, group); err != nil {
		return err
	}

	stop := make(chan struct{})
	beat := make(chan struct{})
	go func() {
		defer close(beat)
		r.keepAlive(ctx, source, group, stop)
	}()

	errCh := make(chan error, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() {
			for ctx.Err() == nil {
				raw, err := r.client.BLMove(ctx, pending, active, "RIGHT", "LEFT", r.pollTimeout).Result()
				if errors.Is(err, redis.Nil) {
					continue
				}
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					if errors.Is(err, redis.ErrClosed) {
						errCh <- fmt.Errorf("pkgmessage: redis consume: %w", err)
						return
					}
					slog.WarnContext(ctx, "redis blocking move failed", "queue", source, "error", err)
					continue
				}
				r.handle(ctx, source, pending, active, raw, handler, autoAck)
			}
		})
	}
	wg.Wait()
	close(stop)
	<-beat
	close(errCh)

	var consumeErr error
	for err := range errCh {
		consumeErr = errors.Join(consumeErr, err)
	}
	return errors.Join(ctx.Err(), consumeErr, r.release(active))
}

// keepAlive refreshes the claim on our active list and sweeps orphaned lists
// of the group until stop is closed.
func (r *Redis) keepAlive(ctx context.Context, queue, group string, stop <-chan struct{}) {
	ticker := time.NewTicker(redisAliveTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.heartbeat(ctx, queue, group); err != nil && ctx.Err() == nil {
				slog.WarnContext(ctx, "redis heartbeat failed", "queue", queue, "error", err)
			}
		}
	}
}

// heartbeat claims our active list for another redisAliveTTL and requeues the
// lists of group members that stopped refreshing theirs.
func (r *Redis) heartbeat(ctx context.Context, queue, group string) error {
	active := r.activeKey(queue, group)
	if err := r.client.Set(ctx, aliveKey(active), r.instance, redisAliveTTL).Err(); err != nil {
		return fmt.Errorf("pkgmessage: redis heartbeat: %w", err)
	}

	pending := r.pendingKey(queue)
	iter := r.client.Scan(ctx, 0, r.activePattern(queue, group), 100).Iterator()
	for iter.Next(ctx) {
		list := iter.Val()
		if list == active {
			continue
		}
		n, err := r.client.Exists(ctx, aliveKey(list)).Result()
		if err != nil {
			return fmt.Errorf("pkgmessage: redis check consumer: %w", err)
		}
		if n > 0 {
			continue
		}
		slog.InfoContext(ctx, "requeueing messages of a silent consumer", "queue", queue, "list", list)
		if err := r.requeueActive(ctx, list, pending); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("pkgmessage: redis scan active lists: %w", err)
	}
	return nil
}

// release drops the claim, so unacked leftovers go back to the group without
// waiting for the TTL.
func (r *Redis) release(active string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.pollTimeout)
	defer cancel()

	err := r.client.Del(ctx, aliveKey(active)).Err()
	if err == nil || errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return fmt.Errorf("pkgmessage: redis release: %w", err)
}

func (r *Redis) handle(ctx context.Context, queue, pending, active, raw string, handler Handler, autoAck bool) {
	var env redisEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// foreign payloads are delivered as-is with no metadata
		env = redisEnvelope{Body: []byte(raw)}
	}

	msg := newRedisMessage(r.client, queue, pending, active, raw, env)
	//nolint:errcheck // an unacked message stays on the active list and is requeued on restart
	_ = deliver(ctx, "redis", msg, handler, autoAck)
}

// requeueActive moves leftovers of a previous run back to the consuming end of the pending list,
// oldest first.
func (r *Redis) requeueActive(ctx context.Context, active, pending string) error {
	for {
		err := r.client.LMove(ctx, active, pending, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pkgmessage: redis requeue active: %w", err)
		}
	}
}

func (r *Redis) pendingKey(queue string) string {
	return r.key(queue, "pending")
}

func (r *Redis) activeKey(queue, group string) string {
	if group == "" {
		group = "default"
	}
	return r.key(queue, group, r.instance, "active")
}

// activePattern matches the active lists of every instance in group.
func (r *Redis) activePattern(queue, group string) string {
	if group == "" {
		group = "default"
	}
	return redisGlob.Replace(r.key(queue, group)) + ":*:active"
}

func aliveKey(active string) string {
	return active + ":alive"
}

var redisGlob = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func (r *Redis) key(parts ...string) string {
	k := r.prefix
	for _, p := range parts {
		if k != "" {
			k += ":"
		}
		k += p
	}
	return k
}

func (r *Redis) nextID(headers []Header) string {
	for _, h := range headers {
		if h.Key == "msg_id" && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(r.seq.Inc(), 10)
}

func (r *Redis) ensureOpen() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return io.ErrClosedPipe
	}
	return nil
}
