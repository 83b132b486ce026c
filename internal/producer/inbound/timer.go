package inbound

import (
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/queuetick/internal/pkg/clock"
	"github.com/shandysiswandi/queuetick/internal/pkg/goroutine"
	"github.com/shandysiswandi/queuetick/internal/pkg/instrument"
	"github.com/shandysiswandi/queuetick/internal/pkg/uid"
)

type ucTimer interface {
	SendGreeting(ctx context.Context) error
}

// RegisterTimer runs SendGreeting once per period until ctx is canceled.
// A failed tick is already logged by the usecase and never stops the timer.
func RegisterTimer(
	ctx context.Context,
	routine *goroutine.Manager,
	clk clock.Clocker,
	uuid uid.StringID,
	period time.Duration,
	uc ucTimer,
) {
	routine.Go(ctx, func(pCtx context.Context) error {
		slog.InfoContext(pCtx, "Running job for producer timer", "period", period.String())

		ticker := clk.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-pCtx.Done():
				slog.InfoContext(pCtx, "producer timer stopped")
				return nil
			case <-ticker.C():
				tickCtx := instrument.SetCorrelationID(pCtx, uuid.Generate())
				//nolint:errcheck // logged and counted by the usecase
				_ = uc.SendGreeting(tickCtx)
			}
		}
	})
}
