package inbound

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/queuetick/internal/pkg/clock"
	"github.com/shandysiswandi/queuetick/internal/pkg/goroutine"
	"github.com/shandysiswandi/queuetick/internal/pkg/instrument"
)

type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { t.once.Do(func() { close(t.stopped) }) }

type manualClock struct {
	ticker *manualTicker
	period chan time.Duration
}

func newManualClock() *manualClock {
	return &manualClock{
		ticker: &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})},
		period: make(chan time.Duration, 1),
	}
}

func (c *manualClock) Now() time.Time { return time.Now() }

func (c *manualClock) NewTicker(d time.Duration) clock.Ticker {
	c.period <- d
	return c.ticker
}

type staticUUID string

func (s staticUUID) Generate() string { return string(s) }

type recordingUC struct {
	calls chan string
	err   error
}

func (r *recordingUC) SendGreeting(ctx context.Context) error {
	r.calls <- instrument.GetCorrelationID(ctx)
	return r.err
}

func TestRegisterTimer_OnePublishPerTick(t *testing.T) {
	clk := newManualClock()
	uc := &recordingUC{calls: make(chan string, 10)}
	routine := goroutine.NewManager(4)

	ctx, cancel := context.WithCancel(context.Background())
	RegisterTimer(ctx, routine, clk, staticUUID("cid-1"), 5*time.Second, uc)

	if d := <-clk.period; d != 5*time.Second {
		t.Fatalf("ticker period = %v, want 5s", d)
	}

	for i := range 3 {
		clk.ticker.ch <- time.Now()

		select {
		case cid := <-uc.calls:
			if cid != "cid-1" {
				t.Fatalf("tick %d correlation id = %q", i, cid)
			}
		case <-time.After(time.Second):
			t.Fatalf("tick %d did not call SendGreeting", i)
		}
	}

	cancel()
	if err := routine.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	select {
	case <-clk.ticker.stopped:
	default:
		t.Fatal("ticker was not stopped")
	}
	if n := len(uc.calls); n != 0 {
		t.Fatalf("extra SendGreeting calls = %d", n)
	}
}

func TestRegisterTimer_KeepsRunningAfterFailure(t *testing.T) {
	clk := newManualClock()
	uc := &recordingUC{calls: make(chan string, 10), err: context.DeadlineExceeded}
	routine := goroutine.NewManager(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	RegisterTimer(ctx, routine, clk, staticUUID("x"), time.Second, uc)
	<-clk.period

	for i := range 2 {
		clk.ticker.ch <- time.Now()
		select {
		case <-uc.calls:
		case <-time.After(time.Second):
			t.Fatalf("tick %d was not handled after a failed publish", i)
		}
	}

	cancel()
	if err := routine.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}
