package router

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/shandysiswandi/queuetick/internal/pkg/config"
	"github.com/shandysiswandi/queuetick/internal/pkg/instrument"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// statusRecorder remembers what the handler wrote so the span, metrics and
// access log can report it.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	err    error
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func (w *statusRecorder) SetError(err error) { w.err = err }

func (w *statusRecorder) code() int {
	return max(w.status, http.StatusOK)
}

type httpObserver struct {
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
	masked   map[string]struct{}
}

func newHTTPObserver(cfg config.Config, ins instrument.Instrumentation) *httpObserver {
	o := &httpObserver{
		tracer: ins.Tracer("http.server"),
		masked: make(map[string]struct{}),
	}
	if cfg != nil {
		for _, field := range cfg.GetArray("instrument.log_mask_fields") {
			if field = strings.ToLower(strings.TrimSpace(field)); field != "" {
				o.masked[field] = struct{}{}
			}
		}
	}

	meter := ins.Meter("http.server")
	var err error
	if o.requests, err = meter.Int64Counter("http.server.requests",
		metric.WithDescription("Number of HTTP requests received")); err != nil {
		slog.Error("router: create request counter", "error", err)
	}
	if o.duration, err = meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request duration in milliseconds"), metric.WithUnit("ms")); err != nil {
		slog.Error("router: create duration histogram", "error", err)
	}
	return o
}

func (o *httpObserver) headers(h http.Header) http.Header {
	if len(o.masked) == 0 {
		return h
	}
	out := h.Clone()
	for key := range out {
		if _, ok := o.masked[strings.ToLower(key)]; ok {
			out.Set(key, "***")
		}
	}
	return out
}

func (o *httpObserver) finish(ctx context.Context, span trace.Span, r *http.Request, route string, rec *statusRecorder, latency time.Duration) {
	status := rec.code()
	attrs := []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String(route),
		semconv.HTTPResponseStatusCodeKey.Int(status),
	}

	if rec.err != nil {
		span.RecordError(rec.err)
	}
	switch {
	case status < http.StatusInternalServerError:
		span.SetStatus(codes.Ok, "")
	case rec.err != nil:
		span.SetStatus(codes.Error, rec.err.Error())
	default:
		span.SetStatus(codes.Error, http.StatusText(status))
	}
	span.SetAttributes(append(attrs,
		semconv.ServerAddressKey.String(r.Host),
		attribute.String("http.user_agent", r.UserAgent()),
		attribute.Int("http.response_content_length", rec.bytes),
	)...)

	if o.requests != nil {
		o.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if o.duration != nil {
		o.duration.Record(ctx, float64(latency.Milliseconds()), metric.WithAttributes(attrs...))
	}

	args := []any{"method", r.Method, "path", route, "status", status, "bytes", rec.bytes, "latency_ms", latency.Milliseconds()}
	if rec.err != nil {
		args = append(args, "error", rec.err)
	}
	slog.InfoContext(ctx, "response sent", args...)
}

func middlewareObservability(cfg config.Config, ins instrument.Instrumentation) Middleware {
	o := newHTTPObserver(cfg, ins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := httprouter.ParamsFromContext(r.Context()).MatchedRoutePath()
			if route == "" {
				route = r.URL.Path
			}

			ctx, span := o.tracer.Start(r.Context(), r.Method+" "+route, trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRouteKey.String(route),
			))
			defer span.End()

			slog.InfoContext(ctx, "request received", "method", r.Method, "path", route, "uri", r.RequestURI, "headers", o.headers(r.Header))

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))
			o.finish(ctx, span, r, route, rec, time.Since(start))
		})
	}
}
