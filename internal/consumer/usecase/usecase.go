package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/queuetick/internal/pkg/clock"
	"github.com/shandysiswandi/queuetick/internal/pkg/instrument"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
)

type Usecase struct {
	clock  clock.Clocker
	ins    instrument.Instrumentation
	source string

	consumed       *atomic.Int64
	lastReceivedAt *atomic.Time
	lastBody       *atomic.String

	consumedCounter metric.Int64Counter
}

type Dependency struct {
	Clock      clock.Clocker
	Instrument instrument.Instrumentation
	Source     string
}

func NewConsumer(dep Dependency) *Usecase {
	consumedCounter, err := dep.Instrument.Meter("consumer.usecase").Int64Counter(
		"queuetick.messages.consumed",
		metric.WithDescription("Number of messages consumed"),
	)
	if err != nil {
		slog.Error("failed to create consumed message counter", "error", err)
	}

	return &Usecase{
		clock:           dep.Clock,
		ins:             dep.Instrument,
		source:          dep.Source,
		consumed:        atomic.NewInt64(0),
		lastReceivedAt:  atomic.NewTime(time.Time{}),
		lastBody:        atomic.NewString(""),
		consumedCounter: consumedCounter,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("consumer.usecase").Start(ctx, name)
}
