package inbound

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shandysiswandi/queuetick/internal/consumer/usecase"
	"github.com/shandysiswandi/queuetick/internal/pkg/router"
)

type fakeStats struct{ st usecase.Stats }

func (f fakeStats) Stats(context.Context) usecase.Stats { return f.st }

func TestHTTPEndpoint_Stats(t *testing.T) {
	end := &HTTPEndpoint{uc: fakeStats{}, group: "testQueue_logger"}
	req := &router.Request{Request: httptest.NewRequest("GET", "/api/v1/consumer/stats", nil)}

	got, err := end.Stats(req)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	resp := got.(StatsResponse)
	if resp.LastBody != nil || resp.LastReceivedAt != nil || resp.Group != "testQueue_logger" {
		t.Fatalf("empty stats response = %+v", resp)
	}

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end.uc = fakeStats{st: usecase.Stats{Source: "testQueue", Consumed: 2, LastReceivedAt: at, LastBody: "Ohai!"}}
	got, err = end.Stats(req)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	resp = got.(StatsResponse)
	if resp.Consumed != 2 || resp.Source != "testQueue" || resp.LastBody == nil || *resp.LastBody != "Ohai!" || !resp.LastReceivedAt.Equal(at) {
		t.Fatalf("stats response = %+v", resp)
	}
}
