package inbound

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/queuetick/internal/consumer/usecase"
	"github.com/shandysiswandi/queuetick/internal/pkg/instrument"
	"github.com/shandysiswandi/queuetick/internal/pkg/messaging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

type fakeMessage struct {
	id      string
	body    []byte
	headers []messaging.Header
	attrs   map[string]string
}

func (m fakeMessage) Body() []byte                      { return m.body }
func (m fakeMessage) Key() []byte                       { return nil }
func (m fakeMessage) Headers() []messaging.Header       { return m.headers }
func (m fakeMessage) Attributes() map[string]string     { return m.attrs }
func (m fakeMessage) ID() string                        { return m.id }
func (m fakeMessage) Topic() string                     { return "testQueue" }
func (m fakeMessage) Subject() string                   { return "" }
func (m fakeMessage) Timestamp() time.Time              { return time.Time{} }
func (m fakeMessage) Ack(context.Context) error         { return nil }

type metadataMessage struct {
	fakeMessage
	meta map[string]any
}

func (m metadataMessage) Metadata() map[string]any { return m.meta }

// recordingIns is an Instrumentation whose tracer feeds a span recorder.
type recordingIns struct {
	tp *sdktrace.TracerProvider
}

func newRecordingIns() (recordingIns, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	return recordingIns{tp: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))}, rec
}

func (r recordingIns) Tracer(name string) trace.Tracer    { return r.tp.Tracer(name) }
func (r recordingIns) Meter(name string) metric.Meter     { return noop.NewMeterProvider().Meter(name) }
func (r recordingIns) Shutdown(ctx context.Context) error { return r.tp.Shutdown(ctx) }

type received struct {
	in      usecase.LogMessageInput
	cID     string
	traceID trace.TraceID
}

type recordingUC struct {
	mu  sync.Mutex
	got []received
	ch  chan received
}

func (r *recordingUC) LogMessage(ctx context.Context, in usecase.LogMessageInput) error {
	rec := received{in: in, cID: instrument.GetCorrelationID(ctx), traceID: trace.SpanContextFromContext(ctx).TraceID()}
	r.mu.Lock()
	r.got = append(r.got, rec)
	r.mu.Unlock()
	if r.ch != nil {
		r.ch <- rec
	}
	return nil
}

type staticUUID string

func (s staticUUID) Generate() string { return string(s) }

func TestMQHandler_LogMessage(t *testing.T) {
	tests := []struct {
		name      string
		msg       fakeMessage
		wantCID   string
		wantMsgID string
	}{
		{
			name: "correlation and message id from headers",
			msg: fakeMessage{
				id:   "broker-1",
				body: []byte("Ohai!"),
				headers: []messaging.Header{
					{Key: "cID", Value: []byte("cid-h")},
					{Key: "msg_id", Value: []byte("77")},
				},
			},
			wantCID:   "cid-h",
			wantMsgID: "77",
		},
		{
			name:      "correlation id from attributes",
			msg:       fakeMessage{id: "broker-2", body: []byte("Ohai!"), attrs: map[string]string{"cID": "cid-a"}},
			wantCID:   "cid-a",
			wantMsgID: "broker-2",
		},
		{
			name:      "generated correlation id for bare messages",
			msg:       fakeMessage{id: "broker-3", body: []byte("Ohai!")},
			wantCID:   "generated",
			wantMsgID: "broker-3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &recordingUC{}
			h := &MQHandler{uc: uc, uuid: staticUUID("generated"), ins: instrument.NewNoop()}

			if err := h.LogMessage(context.Background(), tt.msg); err != nil {
				t.Fatalf("LogMessage() error = %v", err)
			}
			if len(uc.got) != 1 {
				t.Fatalf("usecase called %d times", len(uc.got))
			}
			got := uc.got[0]
			if got.cID != tt.wantCID || got.in.MessageID != tt.wantMsgID || string(got.in.Body) != "Ohai!" {
				t.Fatalf("received = %+v", got)
			}
		})
	}
}

func TestMQHandler_ContinuesTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	const traceID = "0af7651916cd43dd8448eb211c80319c"
	uc := &recordingUC{}
	h := &MQHandler{uc: uc, uuid: staticUUID("generated"), ins: instrument.NewNoop()}

	msg := fakeMessage{id: "broker-4", body: []byte("Ohai!"), attrs: map[string]string{
		"traceparent": "00-" + traceID + "-b7ad6b7169203331-01",
	}}
	if err := h.LogMessage(context.Background(), msg); err != nil {
		t.Fatalf("LogMessage() error = %v", err)
	}
	if got := uc.got[0].traceID.String(); got != traceID {
		t.Fatalf("trace id = %s, want %s", got, traceID)
	}
}

func TestMQHandler_DeliveryAttributes(t *testing.T) {
	tests := []struct {
		name string
		msg  messaging.Message
		want map[attribute.Key]string
	}{
		{
			name: "plain message",
			msg:  fakeMessage{id: "broker-5", body: []byte("Ohai!")},
			want: map[attribute.Key]string{"messaging.destination.name": "testQueue"},
		},
		{
			name: "broker metadata",
			msg: metadataMessage{
				fakeMessage: fakeMessage{id: "broker-6", body: []byte("Ohai!")},
				meta:        map[string]any{"attempts": uint16(2), "nsqd_address": "nsqd:4150"},
			},
			want: map[attribute.Key]string{
				"messaging.destination.name":      "testQueue",
				"messaging.delivery.attempts":     "2",
				"messaging.delivery.nsqd_address": "nsqd:4150",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins, rec := newRecordingIns()
			h := &MQHandler{uc: &recordingUC{}, uuid: staticUUID("generated"), ins: ins}

			if err := h.LogMessage(context.Background(), tt.msg); err != nil {
				t.Fatalf("LogMessage() error = %v", err)
			}

			spans := rec.Ended()
			if len(spans) != 1 {
				t.Fatalf("ended spans = %d, want 1", len(spans))
			}
			got := map[attribute.Key]string{}
			for _, kv := range spans[0].Attributes() {
				got[kv.Key] = kv.Value.Emit()
			}
			if len(got) != len(tt.want) {
				t.Fatalf("span attributes = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("attribute %s = %q, want %q", k, got[k], v)
				}
			}
			if kind := spans[0].SpanKind(); kind != trace.SpanKindConsumer {
				t.Errorf("span kind = %v, want consumer", kind)
			}
		})
	}
}
