package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/queuetick/internal/pkg/clock"
	"github.com/shandysiswandi/queuetick/internal/pkg/instrument"
	"github.com/shandysiswandi/queuetick/internal/pkg/uid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
)

type repoMQ interface {
	PublishGreeting(ctx context.Context, msg GreetingEvent) (string, error)
}

// GreetingEvent is one message produced by a timer tick.
type GreetingEvent struct {
	Destination string
	Body        string
	MessageID   int64
}

type Usecase struct {
	repoMQ      repoMQ
	clock       clock.Clocker
	uid         uid.NumberID
	ins         instrument.Instrumentation
	destination string
	body        string

	published       *atomic.Int64
	failed          *atomic.Int64
	lastPublishedAt *atomic.Time

	publishedCounter metric.Int64Counter
	failedCounter    metric.Int64Counter
}

type Dependency struct {
	RepoMQ      repoMQ
	Clock       clock.Clocker
	UID         uid.NumberID
	Instrument  instrument.Instrumentation
	Destination string
	Body        string
}

func NewProducer(dep Dependency) *Usecase {
	meter := dep.Instrument.Meter("producer.usecase")

	publishedCounter, err := meter.Int64Counter("queuetick.messages.published", metric.WithDescription("Number of messages published"))
	if err != nil {
		slog.Error("failed to create published message counter", "error", err)
	}

	failedCounter, err := meter.Int64Counter("queuetick.messages.failed", metric.WithDescription("Number of messages that failed to publish"))
	if err != nil {
		slog.Error("failed to create failed message counter", "error", err)
	}

	return &Usecase{
		repoMQ:           dep.RepoMQ,
		clock:            dep.Clock,
		uid:              dep.UID,
		ins:              dep.Instrument,
		destination:      dep.Destination,
		body:             dep.Body,
		published:        atomic.NewInt64(0),
		failed:           atomic.NewInt64(0),
		lastPublishedAt:  atomic.NewTime(time.Time{}),
		publishedCounter: publishedCounter,
		failedCounter:    failedCounter,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("producer.usecase").Start(ctx, name)
}
