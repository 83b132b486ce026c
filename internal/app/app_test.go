package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shandysiswandi/queuetick/internal/pkg/config"
	"github.com/shandysiswandi/queuetick/internal/pkg/messaging"
)

const memoryConfig = `
app:
  server:
    max_goroutine: 8
instrument:
  enabled: false
  service_name: queuetick-test
messaging:
  driver: memory
  retry:
    max_attempts: 2
modules:
  producer:
    enabled: true
    period_seconds: 1
  consumer:
    enabled: true
    concurrency: 2
`

func buildTestApp(t *testing.T, yaml string) (*App, error) {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml))
	if err != nil {
		t.Fatalf("NewViperFromBytes() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{ctx: ctx, cancel: cancel, config: cfg}
	return a, a.setup(a.components()...)
}

func newTestApp(t *testing.T, yaml string) *App {
	t.Helper()

	a, err := buildTestApp(t, yaml)
	if err != nil {
		t.Fatalf("setup error = %v", err)
	}
	return a
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("decode %s: %v", body, err)
		}
	}
	return resp.StatusCode
}

func TestApp_MemoryRoundTrip(t *testing.T) {
	a := newTestApp(t, memoryConfig)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	serveErr := a.Serve(ln)
	base := "http://" + ln.Addr().String()

	var health struct {
		Message string            `json:"message"`
		Data    map[string]string `json:"data"`
	}
	if code := getJSON(t, base+"/health", &health); code != http.StatusOK || health.Data["status"] != "ok" {
		t.Fatalf("health = %d %+v", code, health)
	}

	var stats struct {
		Data struct {
			Source   string  `json:"source"`
			Consumed int64   `json:"consumed"`
			LastBody *string `json:"last_body"`
		} `json:"data"`
	}
	deadline := time.Now().Add(10 * time.Second)
	for {
		getJSON(t, base+"/api/v1/consumer/stats", &stats)
		if stats.Data.Consumed > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no message consumed before deadline")
		}
		time.Sleep(100 * time.Millisecond)
	}
	if stats.Data.Source != "testQueue" || stats.Data.LastBody == nil || *stats.Data.LastBody != "Ohai!" {
		t.Fatalf("consumer stats = %+v", stats.Data)
	}

	var produced struct {
		Data struct {
			Destination string `json:"destination"`
			Published   int64  `json:"published"`
		} `json:"data"`
	}
	if code := getJSON(t, base+"/api/v1/producer/stats", &produced); code != http.StatusOK || produced.Data.Destination != "testQueue" || produced.Data.Published < 1 {
		t.Fatalf("producer stats = %d %+v", code, produced.Data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.Stop(ctx)

	if err := <-serveErr; !errors.Is(err, http.ErrServerClosed) {
		t.Fatalf("Serve() = %v", err)
	}
	if _, err := a.messaging.Publish(context.Background(), "testQueue", messaging.OutgoingMessage{Body: []byte("late")}); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("Publish after Stop = %v, want io.ErrClosedPipe", err)
	}
}

func TestApp_HealthReportsFailedWorker(t *testing.T) {
	a := newTestApp(t, `
instrument:
  enabled: false
messaging:
  driver: memory
`)
	defer a.cancel()

	if err := a.healthCheck(context.Background()); err != nil {
		t.Fatalf("healthCheck() = %v", err)
	}

	done := make(chan struct{})
	a.goroutine.Go(a.ctx, func(context.Context) error {
		defer close(done)
		return errors.New("consume loop ended")
	})
	<-done

	deadline := time.Now().Add(2 * time.Second)
	for a.healthCheck(context.Background()) == nil {
		if time.Now().After(deadline) {
			t.Fatal("healthCheck() stayed nil after a worker failed")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestApp_Run(t *testing.T) {
	a := newTestApp(t, `
app:
  server:
    http:
      address: "127.0.0.1:0"
instrument:
  enabled: false
messaging:
  driver: memory
`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v, want nil after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	a.Stop(stopCtx)
}

func TestApp_RunListenError(t *testing.T) {
	a := newTestApp(t, `
app:
  server:
    http:
      address: "256.0.0.1:bad"
instrument:
  enabled: false
messaging:
  driver: memory
`)
	defer a.Stop(context.Background())

	if err := a.Run(context.Background()); err == nil {
		t.Fatal("Run() = nil, want listen error")
	}
}

func TestApp_SetupErrors(t *testing.T) {
	tests := []struct {
		name          string
		yaml          string
		wantErr       string
		wantMessaging bool
	}{
		{
			name:    "unknown driver",
			yaml:    "messaging:\n  driver: carrier-pigeon\n",
			wantErr: `messaging "carrier-pigeon"`,
		},
		{
			name:          "invalid producer options",
			yaml:          "messaging:\n  driver: memory\nmodules:\n  producer:\n    enabled: true\n    destination: \"has space\"\n",
			wantErr:       "module producer",
			wantMessaging: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := buildTestApp(t, tt.yaml)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("setup error = %v, want %q", err, tt.wantErr)
			}
			if a.ctx.Err() == nil {
				t.Fatal("context not canceled after failed setup")
			}
			if (a.messaging != nil) != tt.wantMessaging {
				t.Fatalf("messaging = %v, want opened %t", a.messaging, tt.wantMessaging)
			}
			if a.messaging == nil {
				return
			}

			_, err = a.messaging.Publish(context.Background(), "testQueue", messaging.OutgoingMessage{Body: []byte("Ohai!")})
			if !errors.Is(err, io.ErrClosedPipe) {
				t.Fatalf("Publish() after failed setup error = %v, want %v", err, io.ErrClosedPipe)
			}
		})
	}
}
