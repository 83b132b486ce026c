package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/shandysiswandi/queuetick/internal/consumer/inbound"
	"github.com/shandysiswandi/queuetick/internal/consumer/usecase"
	"github.com/shandysiswandi/queuetick/internal/pkg/clock"
	"github.com/shandysiswandi/queuetick/internal/pkg/config"
	"github.com/shandysiswandi/queuetick/internal/pkg/goroutine"
	"github.com/shandysiswandi/queuetick/internal/pkg/instrument"
	"github.com/shandysiswandi/queuetick/internal/pkg/messaging"
	"github.com/shandysiswandi/queuetick/internal/pkg/router"
	"github.com/shandysiswandi/queuetick/internal/pkg/uid"
	"github.com/shandysiswandi/queuetick/internal/pkg/validator"
	"github.com/shandysiswandi/queuetick/internal/shared/event"
)

type Dependency struct {
	Ctx        context.Context
	Messaging  messaging.Messaging
	Config     config.Config
	Instrument instrument.Instrumentation
	UUID       uid.StringID
	Clock      clock.Clocker
	Goroutine  *goroutine.Manager
	Validator  validator.Validator
	Router     *router.Router
}

type Options struct {
	Driver      string `config:"messaging.driver" validate:"required"`
	Source      string `config:"modules.consumer.source" validate:"required,queuename"`
	Group       string `config:"modules.consumer.group" validate:"required,queuename"`
	Concurrency int    `config:"modules.consumer.concurrency" validate:"min=1,max=1024"`
}

// Module is the running consumer. Close it after all goroutines have stopped.
type Module struct {
	name      string
	closeOnce sync.Once
}

func New(dep Dependency) (*Module, error) {
	opts := optionsFromConfig(dep.Config)
	if err := dep.Validator.Validate(opts); err != nil {
		return nil, fmt.Errorf("consumer options: %w", err)
	}

	m := &Module{name: strings.ToUpper(opts.Driver)}
	m.logStartup(dep.Ctx, dep.Messaging)

	uc := usecase.NewConsumer(usecase.Dependency{
		Clock:      dep.Clock,
		Instrument: dep.Instrument,
		Source:     opts.Source,
	})

	if dep.Router != nil {
		inbound.RegisterHTTPEndpoint(dep.Router, uc, opts.Group)
	}
	if dep.Ctx != nil {
		inbound.RegisterMQConsumer(dep.Ctx, dep.Goroutine, dep.Messaging, inbound.ConsumerOptions{
			Source:      opts.Source,
			Group:       opts.Group,
			Concurrency: opts.Concurrency,
		}, dep.UUID, uc, dep.Instrument)
	}

	return m, nil
}

// Close logs the shutdown notice. Only the first call has an effect.
func (m *Module) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		slog.InfoContext(ctx, "Shutting down "+m.name+" Consumer.")
	})
	return nil
}

func (m *Module) logStartup(ctx context.Context, client messaging.Messaging) {
	if ctx == nil {
		ctx = context.Background()
	}

	slog.InfoContext(ctx, "Starting up "+m.name+" Consumer with configuration:")
	slog.InfoContext(ctx, fmt.Sprintf(" - Endpoint: %T", client))
	slog.InfoContext(ctx, " - ConnectionFactory: "+messaging.Describe(client))
}

func optionsFromConfig(cfg config.Config) Options {
	opts := Options{
		Driver:      cfg.GetString("messaging.driver"),
		Source:      strings.TrimSpace(cfg.GetString("modules.consumer.source")),
		Group:       strings.TrimSpace(cfg.GetString("modules.consumer.group")),
		Concurrency: cfg.GetInt("modules.consumer.concurrency"),
	}

	if opts.Source == "" {
		opts.Source = event.TestQueueDestination
	}
	if opts.Group == "" {
		opts.Group = event.TestQueueConsumerLogger
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = 1
	}

	return opts
}
