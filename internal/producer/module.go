package producer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shandysiswandi/queuetick/internal/pkg/clock"
	"github.com/shandysiswandi/queuetick/internal/pkg/config"
	"github.com/shandysiswandi/queuetick/internal/pkg/goroutine"
	"github.com/shandysiswandi/queuetick/internal/pkg/instrument"
	"github.com/shandysiswandi/queuetick/internal/pkg/messaging"
	"github.com/shandysiswandi/queuetick/internal/pkg/router"
	"github.com/shandysiswandi/queuetick/internal/pkg/uid"
	"github.com/shandysiswandi/queuetick/internal/pkg/validator"
	"github.com/shandysiswandi/queuetick/internal/producer/inbound"
	"github.com/shandysiswandi/queuetick/internal/producer/outbound/mq"
	"github.com/shandysiswandi/queuetick/internal/producer/usecase"
	"github.com/shandysiswandi/queuetick/internal/shared/event"
)

// DefaultPeriod is the timer period used when modules.producer.period_seconds is unset.
const DefaultPeriod = 5 * time.Second

type Dependency struct {
	Ctx        context.Context
	Messaging  messaging.Messaging
	Publisher  messaging.Publisher // optional, wraps Messaging (e.g. with retries)
	Config     config.Config
	Instrument instrument.Instrumentation
	UID        uid.NumberID
	UUID       uid.StringID
	Clock      clock.Clocker
	Goroutine  *goroutine.Manager
	Validator  validator.Validator
	Router     *router.Router
}

type Options struct {
	Driver      string        `config:"messaging.driver" validate:"required"`
	Period      time.Duration `config:"modules.producer.period_seconds" validate:"gt=0"`
	Destination string        `config:"modules.producer.destination" validate:"required,publishname"`
	Body        string        `config:"modules.producer.body" validate:"required"`
}

// Module is the running producer. Close it after all goroutines have stopped.
type Module struct {
	name      string
	closeOnce sync.Once
}

func New(dep Dependency) (*Module, error) {
	opts := optionsFromConfig(dep.Config)
	if err := dep.Validator.Validate(opts); err != nil {
		return nil, fmt.Errorf("producer options: %w", err)
	}

	m := &Module{name: strings.ToUpper(opts.Driver)}
	m.logStartup(dep.Ctx, dep.Messaging)

	pub := dep.Publisher
	if pub == nil {
		pub = dep.Messaging
	}

	uc := usecase.NewProducer(usecase.Dependency{
		RepoMQ:      mq.NewMessaging(pub, dep.Instrument),
		Clock:       dep.Clock,
		UID:         dep.UID,
		Instrument:  dep.Instrument,
		Destination: opts.Destination,
		Body:        opts.Body,
	})

	if dep.Router != nil {
		inbound.RegisterHTTPEndpoint(dep.Router, uc, opts.Period)
	}
	if dep.Ctx != nil {
		inbound.RegisterTimer(dep.Ctx, dep.Goroutine, dep.Clock, dep.UUID, opts.Period, uc)
	}

	return m, nil
}

// Close logs the shutdown notice. Only the first call has an effect.
func (m *Module) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		slog.InfoContext(ctx, "Shutting down "+m.name+" Producer.")
	})
	return nil
}

func (m *Module) logStartup(ctx context.Context, client messaging.Messaging) {
	if ctx == nil {
		ctx = context.Background()
	}

	slog.InfoContext(ctx, "Starting up "+m.name+" Producer with configuration:")
	slog.InfoContext(ctx, fmt.Sprintf(" - Endpoint: %T", client))
	slog.InfoContext(ctx, " - ConnectionFactory: "+messaging.Describe(client))
}

func optionsFromConfig(cfg config.Config) Options {
	opts := Options{
		Driver:      cfg.GetString("messaging.driver"),
		Period:      cfg.GetSecond("modules.producer.period_seconds"),
		Destination: strings.TrimSpace(cfg.GetString("modules.producer.destination")),
		Body:        cfg.GetString("modules.producer.body"),
	}

	if opts.Period == 0 {
		opts.Period = DefaultPeriod
	}
	if opts.Destination == "" {
		opts.Destination = event.TestQueueDestination
	}
	if opts.Body == "" {
		opts.Body = event.GreetingBody
	}

	return opts
}
