package inbound

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shandysiswandi/queuetick/internal/pkg/router"
	"github.com/shandysiswandi/queuetick/internal/producer/usecase"
)

type fakeStats struct{ st usecase.Stats }

func (f fakeStats) Stats(context.Context) usecase.Stats { return f.st }

func TestHTTPEndpoint_Stats(t *testing.T) {
	last := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	tests := []struct {
		name     string
		st       usecase.Stats
		wantLast *time.Time
	}{
		{
			name: "never published",
			st:   usecase.Stats{Destination: "testQueue"},
		},
		{
			name:     "published",
			st:       usecase.Stats{Destination: "testQueue", Published: 3, Failed: 1, LastPublishedAt: last},
			wantLast: &last,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end := &HTTPEndpoint{uc: fakeStats{st: tt.st}, period: 5 * time.Second}

			req := &router.Request{Request: httptest.NewRequest("GET", "/api/v1/producer/stats", nil)}
			got, err := end.Stats(req)
			if err != nil {
				t.Fatalf("Stats() error = %v", err)
			}

			resp, ok := got.(StatsResponse)
			if !ok {
				t.Fatalf("Stats() returned %T", got)
			}
			if resp.Destination != "testQueue" || resp.PeriodSeconds != 5 || resp.Published != tt.st.Published || resp.Failed != tt.st.Failed {
				t.Fatalf("response = %+v", resp)
			}
			if (resp.LastPublishedAt == nil) != (tt.wantLast == nil) {
				t.Fatalf("LastPublishedAt = %v, want %v", resp.LastPublishedAt, tt.wantLast)
			}
			if tt.wantLast != nil && !resp.LastPublishedAt.Equal(*tt.wantLast) {
				t.Fatalf("LastPublishedAt = %v, want %v", resp.LastPublishedAt, tt.wantLast)
			}
		})
	}
}
