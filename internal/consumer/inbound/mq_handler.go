package inbound

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/shandysiswandi/queuetick/internal/consumer/usecase"
	"github.com/shandysiswandi/queuetick/internal/pkg/instrument"
	"github.com/shandysiswandi/queuetick/internal/pkg/messaging"
	"github.com/shandysiswandi/queuetick/internal/pkg/uid"
	"github.com/shandysiswandi/queuetick/internal/shared/event"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ucConsumer interface {
	LogMessage(ctx context.Context, in usecase.LogMessageInput) error
}

type MQHandler struct {
	uc   ucConsumer
	uuid uid.StringID
	ins  instrument.Instrumentation
}

func (h *MQHandler) ensureCorrelationID(ctx context.Context, msg messaging.Message) context.Context {
	for _, hd := range msg.Headers() {
		if hd.Key == event.HeaderCorrelationID && len(hd.Value) > 0 {
			return instrument.SetCorrelationID(ctx, string(hd.Value))
		}
	}
	if v := msg.Attributes()[event.HeaderCorrelationID]; v != "" {
		return instrument.SetCorrelationID(ctx, v)
	}
	return instrument.SetCorrelationID(ctx, h.uuid.Generate())
}

func messageID(msg messaging.Message) string {
	for _, hd := range msg.Headers() {
		if hd.Key == event.HeaderMessageID && len(hd.Value) > 0 {
			return string(hd.Value)
		}
	}
	return msg.ID()
}

// deliveryAttributes describes the delivery as the broker reported it
// (attempts, offsets, redelivery flags).
func deliveryAttributes(msg messaging.Message) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("messaging.destination.name", msg.Topic())}

	mc, ok := msg.(messaging.MetadataCarrier)
	if !ok {
		return attrs
	}
	md := mc.Metadata()
	for _, k := range slices.Sorted(maps.Keys(md)) {
		attrs = append(attrs, attribute.String("messaging.delivery."+k, fmt.Sprint(md[k])))
	}
	return attrs
}

func (h *MQHandler) LogMessage(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg)
	ctx = instrument.ExtractTrace(ctx, msg.Attributes())

	ctx, span := h.ins.Tracer("consumer.inbound.mq").Start(ctx, "LogMessage",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(deliveryAttributes(msg)...),
	)
	defer span.End()

	return h.uc.LogMessage(ctx, usecase.LogMessageInput{
		Body:      msg.Body(),
		MessageID: messageID(msg),
	})
}
