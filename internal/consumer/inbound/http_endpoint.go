package inbound

import (
	"context"

	"github.com/shandysiswandi/queuetick/internal/consumer/usecase"
	"github.com/shandysiswandi/queuetick/internal/pkg/router"
)

type ucStats interface {
	Stats(ctx context.Context) usecase.Stats
}

func RegisterHTTPEndpoint(r *router.Router, uc ucStats, group string) {
	r.GET("/api/v1/consumer/stats", (&HTTPEndpoint{uc: uc, group: group}).Stats)
}

type HTTPEndpoint struct {
	uc    ucStats
	group string
}

// Stats reports what the consumer has received since process start.
func (h *HTTPEndpoint) Stats(r *router.Request) (any, error) {
	st := h.uc.Stats(r.Context())

	resp := StatsResponse{
		Source:   st.Source,
		Group:    h.group,
		Consumed: st.Consumed,
	}
	if !st.LastReceivedAt.IsZero() {
		resp.LastReceivedAt = &st.LastReceivedAt
		resp.LastBody = &st.LastBody
	}

	return resp, nil
}
