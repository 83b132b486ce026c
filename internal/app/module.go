package app

import (
	"fmt"
	"log/slog"

	"github.com/shandysiswandi/queuetick/internal/consumer"
	"github.com/shandysiswandi/queuetick/internal/producer"
)

func (a *App) initModules() error {
	if a.config.GetBool("modules.consumer.enabled") {
		mod, err := consumer.New(consumer.Dependency{
			Ctx:        a.ctx,
			Messaging:  a.messaging,
			Config:     a.config,
			Instrument: a.ins,
			UUID:       a.uuid,
			Clock:      a.clock,
			Goroutine:  a.goroutine,
			Validator:  a.validator,
			Router:     a.router,
		})
		if err != nil {
			return fmt.Errorf("module consumer: %w", err)
		}
		a.consumer = mod
	}

	if a.config.GetBool("modules.producer.enabled") {
		mod, err := producer.New(producer.Dependency{
			Ctx:        a.ctx,
			Messaging:  a.messaging,
			Publisher:  a.publisher,
			Config:     a.config,
			Instrument: a.ins,
			UID:        a.uid,
			UUID:       a.uuid,
			Clock:      a.clock,
			Goroutine:  a.goroutine,
			Validator:  a.validator,
			Router:     a.router,
		})
		if err != nil {
			return fmt.Errorf("module producer: %w", err)
		}
		a.producer = mod
	}

	if a.consumer == nil && a.producer == nil {
		slog.Warn("no module enabled, only the ops server is running")
	}
	return nil
}
