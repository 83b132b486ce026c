package mq

import (
	"context"
	"strconv"

	"github.com/shandysiswandi/queuetick/internal/pkg/instrument"
	"github.com/shandysiswandi/queuetick/internal/pkg/messaging"
	"github.com/shandysiswandi/queuetick/internal/producer/usecase"
	"github.com/shandysiswandi/queuetick/internal/shared/event"
	"go.opentelemetry.io/otel/codes"
)

type Messaging struct {
	client messaging.Publisher
	ins    instrument.Instrumentation
}

func NewMessaging(client messaging.Publisher, ins instrument.Instrumentation) *Messaging {
	return &Messaging{client: client, ins: ins}
}

// PublishGreeting sends the raw body with diagnostic headers and returns the broker message ID, if any.
func (m *Messaging) PublishGreeting(ctx context.Context, msg usecase.GreetingEvent) (string, error) {
	ctx, span := m.ins.Tracer("producer.outbound.mq").Start(ctx, "PublishGreeting")
	defer span.End()

	headers := []messaging.Header{
		{Key: event.HeaderCorrelationID, Value: []byte(instrument.GetCorrelationID(ctx))},
		{Key: event.HeaderMessageID, Value: []byte(strconv.FormatInt(msg.MessageID, 10))},
		{Key: event.HeaderContentType, Value: []byte(event.ContentTypeText)},
	}
	for k, v := range instrument.InjectTrace(ctx) {
		headers = append(headers, messaging.Header{Key: k, Value: []byte(v)})
	}

	res, err := m.client.Publish(ctx, msg.Destination, messaging.OutgoingMessage{
		Body:    []byte(msg.Body),
		Headers: headers,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return res.MessageID, nil
}
