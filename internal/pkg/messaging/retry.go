package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/samber/lo"
	"github.com/sethvargo/go-retry"
)

// RetryConfig bounds publish retries.
type RetryConfig struct {
	// MaxAttempts counts the first try. Values below 1 mean 1.
	MaxAttempts int
	// BaseDelay is the first backoff; it doubles on every retry.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff.
	MaxDelay time.Duration
}

// DefaultRetryConfig is three attempts with 100ms..1s exponential backoff.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 3,
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    time.Second,
}

// permanentErrors are never retried. This includes failures after the broker
// client took the message.
var permanentErrors = []error{
	ErrUnsupported,
	ErrUnconfirmed,
	nats.ErrTimeout,
	io.ErrClosedPipe,
	context.Canceled,
	context.DeadlineExceeded,
	ErrAMQPQueueRequired,
	ErrKafkaTopicRequired,
	ErrMemoryQueueRequired,
	ErrMQTTTopicRequired,
	ErrNATSSubjectRequired,
	ErrNSQTopicRequired,
	ErrNSQProducerAddrRequired,
	ErrPubSubTopicRequired,
	ErrRedisQueueRequired,
}

// RetryPublisher retries transient publish failures of the wrapped Publisher.
type RetryPublisher struct {
	next Publisher
	cfg  RetryConfig
}

// NewRetryPublisher wraps pub. Zero fields of cfg take the DefaultRetryConfig value.
func NewRetryPublisher(pub Publisher, cfg RetryConfig) *RetryPublisher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	return &RetryPublisher{next: pub, cfg: cfg}
}

// Publish calls the wrapped Publisher until it succeeds, fails permanently or runs out of attempts.
func (r *RetryPublisher) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	b := retry.NewExponential(r.cfg.BaseDelay)
	b = retry.WithCappedDuration(r.cfg.MaxDelay, b)
	b = retry.WithMaxRetries(uint64(r.cfg.MaxAttempts-1), b) //nolint:gosec // MaxAttempts >= 1

	var (
		res     PublishResult
		attempt int
	)
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++

		var err error
		res, err = r.next.Publish(ctx, destination, msg)
		if err == nil {
			return nil
		}
		if isPermanent(err) || attempt >= r.cfg.MaxAttempts {
			return err
		}

		slog.WarnContext(ctx, "publish failed, retrying", "destination", destination, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		return PublishResult{}, err
	}
	return res, nil
}

func isPermanent(err error) bool {
	return lo.ContainsBy(permanentErrors, func(target error) bool {
		return errors.Is(err, target)
	})
}
