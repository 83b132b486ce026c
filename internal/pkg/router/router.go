// Package router serves the ops HTTP surface: health and per-module stats.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/shandysiswandi/queuetick/internal/pkg/config"
	"github.com/shandysiswandi/queuetick/internal/pkg/goerror"
	"github.com/shandysiswandi/queuetick/internal/pkg/instrument"
	"github.com/shandysiswandi/queuetick/internal/pkg/uid"
)

const defaultSuccessMessage = "request has been successfully"

type errorResponse struct {
	Message string `json:"message"`
}

type successResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func (healthResponse) Message() string { return "ok" }

// Request is what endpoint handlers receive.
type Request struct {
	*http.Request
}

// Param returns the named path parameter, or "" when the route has none.
func (r *Request) Param(name string) string {
	return httprouter.ParamsFromContext(r.Context()).ByName(name)
}

// Handler returns a payload to encode as JSON, or an error. A nil payload
// with a nil error answers 204.
type Handler func(r *Request) (any, error)

type Config struct {
	Config     config.Config
	UUID       uid.StringID
	Instrument instrument.Instrumentation
	// HealthCheck reports whether the process is still doing its job. Nil means always healthy.
	HealthCheck func(ctx context.Context) error
}

type Router struct {
	hr     *httprouter.Router
	mws    []Middleware
	health func(ctx context.Context) error
}

// NewRouter wires the default middleware stack and registers /health.
func NewRouter(cfg Config) *Router {
	ro := &Router{
		hr: &httprouter.Router{
			RedirectTrailingSlash:  true,
			RedirectFixedPath:      true,
			HandleMethodNotAllowed: true,
			HandleOPTIONS:          true,
			SaveMatchedRoutePath:   true,
			NotFound:               messageHandler("endpoint not found", http.StatusNotFound),
			MethodNotAllowed:       messageHandler("method not allowed", http.StatusMethodNotAllowed),
		},
		mws: []Middleware{
			middlewareRecoverer,
			middlewareIP,
			middlewareCorrelationID(cfg.UUID),
			middlewareObservability(cfg.Config, cfg.Instrument),
		},
		health: cfg.HealthCheck,
	}

	ro.GET("/health", ro.checkHealth)
	return ro
}

// GET registers h for path. mws run after the router's own middleware.
func (r *Router) GET(path string, h Handler, mws ...Middleware) {
	r.handle(http.MethodGet, path, h, mws...)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.hr.ServeHTTP(w, req)
}

func (r *Router) handle(method, path string, h Handler, mws ...Middleware) {
	endpoint := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		resp, err := h(&Request{Request: req})
		if err != nil {
			if rec, ok := w.(interface{ SetError(error) }); ok {
				rec.SetError(err)
			}
			writeError(w, err)
			return
		}
		writeSuccess(w, resp)
	})

	r.hr.Handler(method, path, Chain(endpoint, append(r.mws, mws...)...))
}

func (r *Router) checkHealth(req *Request) (any, error) {
	if r.health == nil {
		return healthResponse{Status: "ok"}, nil
	}

	err := r.health(req.Context())
	var gerr *goerror.Error
	switch {
	case err == nil:
		return healthResponse{Status: "ok"}, nil
	case errors.As(err, &gerr):
		return nil, err
	default:
		return nil, goerror.NewUnavailable("service unavailable", err)
	}
}

func messageHandler(msg string, code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, errorResponse{Message: msg}, code)
	})
}

func writeError(w http.ResponseWriter, err error) {
	var gerr *goerror.Error
	if !errors.As(err, &gerr) {
		writeJSON(w, errorResponse{Message: "Internal server error"}, http.StatusInternalServerError)
		return
	}
	writeJSON(w, errorResponse{Message: gerr.Msg()}, gerr.StatusCode())
}

func writeSuccess(w http.ResponseWriter, resp any) {
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	msg := defaultSuccessMessage
	if m, ok := resp.(interface{ Message() string }); ok {
		msg = m.Message()
	}
	writeJSON(w, successResponse{Message: msg, Data: resp}, http.StatusOK)
}

func writeJSON(w http.ResponseWriter, data any, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("router: encode response", "error", err)
	}
}
