// Package goroutine runs the long-lived background loops of the service under
// a shared concurrency limit and collects what they return.
package goroutine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/shandysiswandi/queuetick/internal/pkg/stacktrace"
)

// DefaultMaxGoroutine is multiplied by the CPU count when NewManager receives
// a non-positive limit.
const DefaultMaxGoroutine int = 100

// Manager is safe for concurrent use. After Wait has been called it refuses
// new work.
type Manager struct {
	wg   sync.WaitGroup
	slot chan struct{}

	mu     sync.Mutex
	closed bool
	errs   []error
}

func NewManager(maxGoroutine int) *Manager {
	if maxGoroutine < 1 {
		maxGoroutine = runtime.NumCPU() * DefaultMaxGoroutine
	}
	return &Manager{slot: make(chan struct{}, maxGoroutine)}
}

// Go starts f unless the manager is closed or full, and reports whether it did.
// f is skipped when ctx is already done by the time it is scheduled.
func (g *Manager) Go(ctx context.Context, f func(ctx context.Context) error) bool {
	if g == nil {
		return false
	}
	if err := g.acquire(); err != nil {
		slog.WarnContext(ctx, "goroutine not started", "reason", err.Error())
		return false
	}

	go func() {
		defer g.wg.Done()
		defer func() { <-g.slot }()
		defer g.recover(ctx)

		if err := ctx.Err(); err != nil {
			slog.WarnContext(ctx, "goroutine canceled", "because", err)
			return
		}
		if err := f(ctx); err != nil {
			g.record(err)
		}
	}()
	return true
}

// Wait closes the manager, waits for running tasks and returns their joined errors.
func (g *Manager) Wait() error {
	if g == nil {
		return nil
	}

	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.wg.Wait()
	return g.Err()
}

// Err returns the errors collected so far without waiting.
func (g *Manager) Err() error {
	if g == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return errors.Join(g.errs...)
}

func (g *Manager) acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return errors.New("manager closed")
	}
	select {
	case g.slot <- struct{}{}:
		g.wg.Add(1)
		return nil
	default:
		return fmt.Errorf("limit of %d reached", cap(g.slot))
	}
}

func (g *Manager) recover(ctx context.Context) {
	rvr := recover()
	if rvr == nil {
		return
	}

	stack := debug.Stack()
	if paths := stacktrace.InternalPaths(stack); len(paths) > 0 {
		slog.ErrorContext(ctx, "panic occurred in goroutine", "value", rvr, "stack", paths)
	} else {
		slog.ErrorContext(ctx, "panic occurred in goroutine", "value", rvr, "stack", string(stack))
	}
	g.record(fmt.Errorf("goroutine: panic: %v", rvr))
}

func (g *Manager) record(err error) {
	g.mu.Lock()
	g.errs = append(g.errs, err)
	g.mu.Unlock()
}
