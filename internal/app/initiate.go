package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/cors"
	"github.com/shandysiswandi/queuetick/internal/pkg/clock"
	"github.com/shandysiswandi/queuetick/internal/pkg/config"
	"github.com/shandysiswandi/queuetick/internal/pkg/goerror"
	"github.com/shandysiswandi/queuetick/internal/pkg/goroutine"
	"github.com/shandysiswandi/queuetick/internal/pkg/instrument"
	"github.com/shandysiswandi/queuetick/internal/pkg/messaging"
	"github.com/shandysiswandi/queuetick/internal/pkg/router"
	"github.com/shandysiswandi/queuetick/internal/pkg/uid"
	"github.com/shandysiswandi/queuetick/internal/pkg/validator"
)

func (a *App) initConfig() error {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "/config/config.yaml"
		if os.Getenv("LOCAL") == "true" {
			path = "./config/config.yaml"
		}
	}

	cfg, err := config.NewViper(path)
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}

	if tz := cfg.GetString("app.tz"); tz != "" {
		//nolint:errcheck,gosec // ignore error
		os.Setenv("TZ", tz)
	}

	a.config = cfg
	return nil
}

func (a *App) initInstrument() error {
	ins, err := instrument.New(context.Background(), &instrument.Config{
		Enabled:          a.config.GetBool("instrument.enabled"),
		ServiceName:      a.config.GetString("instrument.service_name"),
		ServiceVersion:   a.config.GetString("instrument.service_version"),
		Environment:      a.config.GetString("instrument.env"),
		OTLPEndpoint:     a.config.GetString("instrument.otlp_endpoint"),
		OTLPSecure:       a.config.GetBool("instrument.otlp_secure"),
		TraceSampleRatio: a.config.GetFloat64("instrument.trace_sample_ratio"),
		MetricsInterval:  a.config.GetSecond("instrument.metric_interval_seconds"),
		MaskFields:       a.config.GetArray("instrument.log_mask_fields"),
		LogLevel:         a.config.GetString("instrument.log_level"),
	})
	if err != nil {
		return fmt.Errorf("instrument: %w", err)
	}
	a.ins = ins
	return nil
}

func (a *App) initLibraries() error {
	a.clock = clock.New()
	a.uuid = uid.NewUUID()
	a.goroutine = goroutine.NewManager(a.config.GetInt("app.server.max_goroutine"))

	v, err := validator.NewV10Validator()
	if err != nil {
		return fmt.Errorf("validator: %w", err)
	}
	a.validator = v

	snow, err := uid.NewSnowflake()
	if err != nil {
		return fmt.Errorf("snowflake: %w", err)
	}
	a.uid = snow
	return nil
}

func (a *App) initMessaging() error {
	driver := strings.TrimSpace(a.config.GetString("messaging.driver"))

	opts, err := factoryOptions(a.ctx, a.config)
	if err != nil {
		return fmt.Errorf("messaging %q options: %w", driver, err)
	}

	client, err := messaging.NewFromDriver(a.ctx, driver, opts)
	if err != nil {
		return fmt.Errorf("messaging %q: %w", driver, err)
	}

	a.messaging = client
	a.publisher = messaging.NewRetryPublisher(client, retryConfig(a.config))
	return nil
}

func (a *App) initHTTPServer() error {
	a.router = router.NewRouter(router.Config{
		Config:      a.config,
		UUID:        a.uuid,
		Instrument:  a.ins,
		HealthCheck: a.healthCheck,
	})

	routerWithCORS := cors.New(cors.Options{
		AllowedOrigins: a.config.GetArray("app.server.cors"),
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(a.router)

	a.httpServer = &http.Server{
		Addr:              a.config.GetString("app.server.http.address"),
		Handler:           routerWithCORS,
		ReadTimeout:       a.config.GetSecond("app.server.http.read_timeout_seconds"),
		ReadHeaderTimeout: a.config.GetSecond("app.server.http.read_header_timeout_seconds"),
		WriteTimeout:      a.config.GetSecond("app.server.http.write_timeout_seconds"),
		IdleTimeout:       a.config.GetSecond("app.server.http.idle_timeout_seconds"),
	}
	if a.httpServer.Addr == "" {
		a.httpServer.Addr = ":8080"
	}
	return nil
}

// healthCheck fails once a timer or consume loop has ended with an error.
func (a *App) healthCheck(context.Context) error {
	if err := a.goroutine.Err(); err != nil {
		return goerror.NewUnavailable("background worker stopped", err)
	}
	if err := a.ctx.Err(); err != nil {
		return goerror.NewUnavailable("shutting down", err)
	}
	return nil
}

// initClosers orders teardown: module shutdown notices, the broker
// connection, then telemetry and config. Steps skip what was never opened.
func (a *App) initClosers() error {
	a.closers = []closer{
		{name: "producer", fn: func(ctx context.Context) error {
			if a.producer == nil {
				return nil
			}
			return a.producer.Close(ctx)
		}},
		{name: "consumer", fn: func(ctx context.Context) error {
			if a.consumer == nil {
				return nil
			}
			return a.consumer.Close(ctx)
		}},
		{name: "messaging", fn: func(context.Context) error {
			if a.messaging == nil {
				return nil
			}
			return a.messaging.Close()
		}},
		{name: "instrument", fn: func(ctx context.Context) error {
			if a.ins == nil {
				return nil
			}
			return a.ins.Shutdown(ctx)
		}},
		{name: "config", fn: func(context.Context) error {
			if a.config == nil {
				return nil
			}
			return a.config.Close()
		}},
	}
	return nil
}
