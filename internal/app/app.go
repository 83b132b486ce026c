package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shandysiswandi/queuetick/internal/consumer"
	"github.com/shandysiswandi/queuetick/internal/pkg/clock"
	"github.com/shandysiswandi/queuetick/internal/pkg/config"
	"github.com/shandysiswandi/queuetick/internal/pkg/goroutine"
	"github.com/shandysiswandi/queuetick/internal/pkg/instrument"
	"github.com/shandysiswandi/queuetick/internal/pkg/messaging"
	"github.com/shandysiswandi/queuetick/internal/pkg/router"
	"github.com/shandysiswandi/queuetick/internal/pkg/uid"
	"github.com/shandysiswandi/queuetick/internal/pkg/validator"
	"github.com/shandysiswandi/queuetick/internal/producer"
)

// App owns every long-lived dependency. ctx is the root of the timer and
// consume loops; Stop cancels it.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	config config.Config
	ins    instrument.Instrumentation

	goroutine *goroutine.Manager
	validator validator.Validator
	clock     clock.Clocker
	uid       uid.NumberID
	uuid      uid.StringID

	messaging messaging.Messaging
	publisher messaging.Publisher

	router     *router.Router
	httpServer *http.Server

	producer *producer.Module
	consumer *consumer.Module

	closers []closer
}

// abortTimeout bounds the cleanup after a failed setup.
const abortTimeout = 10 * time.Second

type closer struct {
	name string
	fn   func(context.Context) error
}

// New builds the whole application from CONFIG_PATH.
func New() (*App, error) {
	a := &App{}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	if err := a.setup(a.initConfig); err != nil {
		return nil, err
	}
	if err := a.setup(a.components()...); err != nil {
		return nil, err
	}
	return a, nil
}

// components lists every init step that runs once config is loaded, in order.
func (a *App) components() []func() error {
	return []func() error{
		a.initInstrument,
		a.initLibraries,
		a.initMessaging,
		a.initHTTPServer,
		a.initModules,
		a.initClosers,
	}
}

func (a *App) setup(steps ...func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			a.abort()
			return fmt.Errorf("app: %w", err)
		}
	}
	return nil
}

// abort undoes a partial setup: the loops started so far are stopped and every
// dependency already opened is closed.
func (a *App) abort() {
	a.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()

	if a.goroutine != nil {
		if err := a.goroutine.Wait(); err != nil {
			slog.ErrorContext(ctx, "background loop failed during setup", "error", err)
		}
	}
	//nolint:errcheck // never fails
	_ = a.initClosers()
	a.runClosers(ctx, a.closers)
}

func (a *App) runClosers(ctx context.Context, steps []closer) {
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			slog.ErrorContext(ctx, "shutdown step failed", "name", s.name, "error", err)
			continue
		}
		slog.DebugContext(ctx, "shutdown step done", "name", s.name)
	}
}
