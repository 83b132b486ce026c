package usecase

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type LogMessageInput struct {
	Body      []byte
	MessageID string
}

// LogMessage writes one line per received message. Any body is accepted.
func (s *Usecase) LogMessage(ctx context.Context, in LogMessageInput) error {
	ctx, span := s.startSpan(ctx, "LogMessage")
	defer span.End()

	body := string(in.Body)
	span.SetAttributes(
		attribute.String("messaging.source.name", s.source),
		attribute.String("messaging.message.id", in.MessageID),
	)

	slog.InfoContext(ctx, `Got message "`+body+`" from `+s.source, "source", s.source, "msg_id", in.MessageID)

	s.consumed.Inc()
	s.lastReceivedAt.Store(s.clock.Now())
	s.lastBody.Store(body)
	if s.consumedCounter != nil {
		s.consumedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("source", s.source)))
	}

	return nil
}
