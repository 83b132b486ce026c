package inbound

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/queuetick/internal/pkg/goroutine"
	"github.com/shandysiswandi/queuetick/internal/pkg/instrument"
	"github.com/shandysiswandi/queuetick/internal/pkg/messaging"
	"github.com/shandysiswandi/queuetick/internal/pkg/uid"
)

// ConsumerOptions selects what to consume and how.
type ConsumerOptions struct {
	Source      string
	Group       string
	Concurrency int
}

func RegisterMQConsumer(
	ctx context.Context,
	routine *goroutine.Manager,
	messenger messaging.Consumer,
	opts ConsumerOptions,
	uuid uid.StringID,
	uc ucConsumer,
	ins instrument.Instrumentation,
) {
	mqHandler := &MQHandler{uc: uc, uuid: uuid, ins: ins}

	routine.Go(ctx, func(pCtx context.Context) error {
		slog.InfoContext(ctx, "Running job for handling consumer", "source", opts.Source, "group", opts.Group)

		err := messenger.Consume(pCtx,
			opts.Source,
			mqHandler.LogMessage,
			messaging.WithGroup(opts.Group),
			messaging.WithAutoAck(true),
			messaging.WithConcurrency(opts.Concurrency),
			messaging.WithMaxInFlight(opts.Concurrency),
		)
		if err != nil && pCtx.Err() != nil {
			// canceled by shutdown
			return nil
		}
		return err
	})
}
