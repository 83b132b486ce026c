package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"github.com/shandysiswandi/queuetick/internal/pkg/stacktrace"
)

// settled records whether a received message was acked or nacked already.
// Embed it in driver message types.
type settled struct {
	done atomic.Bool
}

// settle marks the message and reports whether this call was the first.
func (s *settled) settle() bool { return !s.done.Swap(true) }

func (s *settled) hasResponded() bool { return s.done.Load() }

type delivery interface {
	Message
	Nackable
	hasResponded() bool
}

// deliver runs handler on msg and, when autoAck is set and the handler did not
// settle msg itself, acks on success or nacks on failure. It returns the
// handler error. A panicking handler counts as a failed one.
func deliver(ctx context.Context, kind string, msg delivery, handler Handler, autoAck bool) error {
	herr := recoverHandler(ctx, kind, func() error { return handler(ctx, msg) })
	if !autoAck || msg.hasResponded() {
		return herr
	}

	settle, verb := msg.Ack, "ack"
	if herr != nil {
		settle, verb = msg.Nack, "nack"
	}
	if err := settle(ctx); err != nil {
		slog.WarnContext(ctx, "failed to "+verb+" message", "kind", kind, "id", msg.ID(), "error", err)
	}
	return herr
}

func recoverHandler(ctx context.Context, kind string, fn func() error) (err error) {
	defer func() {
		rvr := recover()
		if rvr == nil {
			return
		}

		stack := debug.Stack()
		if paths := stacktrace.InternalPaths(stack); len(paths) > 0 {
			slog.ErrorContext(ctx, "panic in messaging handler", "kind", kind, "panic", rvr, "stack", paths)
		} else {
			slog.ErrorContext(ctx, "panic in messaging handler", "kind", kind, "panic", rvr, "stack", string(stack))
		}
		err = fmt.Errorf("pkgmessage: panic in %s handler: %v", kind, rvr)
	}()

	return fn()
}
