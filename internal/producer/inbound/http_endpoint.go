package inbound

import (
	"context"
	"time"

	"github.com/shandysiswandi/queuetick/internal/pkg/router"
	"github.com/shandysiswandi/queuetick/internal/producer/usecase"
)

type ucStats interface {
	Stats(ctx context.Context) usecase.Stats
}

// RegisterHTTPEndpoint mounts the producer stats under /api/v1/producer.
func RegisterHTTPEndpoint(r *router.Router, uc ucStats, period time.Duration) {
	r.GET("/api/v1/producer/stats", (&HTTPEndpoint{uc: uc, period: period}).Stats)
}

type HTTPEndpoint struct {
	uc     ucStats
	period time.Duration
}

// Stats reports the producer counters since process start.
func (h *HTTPEndpoint) Stats(r *router.Request) (any, error) {
	st := h.uc.Stats(r.Context())

	resp := StatsResponse{
		Destination:   st.Destination,
		PeriodSeconds: h.period.Seconds(),
		Published:     st.Published,
		Failed:        st.Failed,
	}
	if !st.LastPublishedAt.IsZero() {
		resp.LastPublishedAt = &st.LastPublishedAt
	}

	return resp, nil
}
