package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/queuetick/internal/pkg/goerror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// SendGreeting publishes the configured body to the configured destination once.
func (s *Usecase) SendGreeting(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "SendGreeting")
	defer span.End()

	msgID := s.uid.Generate()
	span.SetAttributes(
		attribute.String("messaging.destination.name", s.destination),
		attribute.Int64("messaging.message.id", msgID),
	)

	slog.InfoContext(ctx, `Sending message "`+s.body+`" to `+s.destination, "destination", s.destination, "msg_id", msgID)

	attrs := metric.WithAttributes(attribute.String("destination", s.destination))
	brokerID, err := s.repoMQ.PublishGreeting(ctx, GreetingEvent{
		Destination: s.destination,
		Body:        s.body,
		MessageID:   msgID,
	})
	if err != nil {
		if ctx.Err() != nil {
			slog.WarnContext(ctx, "publish interrupted by shutdown", "destination", s.destination, "msg_id", msgID)
			return ctx.Err()
		}

		s.failed.Inc()
		if s.failedCounter != nil {
			s.failedCounter.Add(ctx, 1, attrs)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "failed to publish message", "destination", s.destination, "msg_id", msgID, "error", err)
		return goerror.NewServer(err)
	}

	s.published.Inc()
	s.lastPublishedAt.Store(s.clock.Now())
	if s.publishedCounter != nil {
		s.publishedCounter.Add(ctx, 1, attrs)
	}
	if brokerID != "" {
		slog.DebugContext(ctx, "message accepted by broker", "msg_id", msgID, "broker_msg_id", brokerID)
	}

	return nil
}
