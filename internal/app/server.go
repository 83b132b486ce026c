package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
)

// Run serves HTTP on the configured address until ctx is done (nil) or the
// server fails (the error). Call Stop afterwards in both cases.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.httpServer.Addr, err)
	}
	slog.InfoContext(ctx, "http server listening", "address", ln.Addr().String())

	select {
	case err := <-a.Serve(ln):
		return err
	case <-ctx.Done():
		slog.InfoContext(ctx, "shutdown signal received")
		return nil
	}
}

// Serve runs the HTTP server on l. The channel yields http.ErrServerClosed
// once Stop has shut the server down.
func (a *App) Serve(l net.Listener) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.httpServer.Serve(l) }()
	return errCh
}

// Stop cancels the timer and consume loops, lets the HTTP server drain, waits
// for the loops to return, then runs the closers in order. Each step is
// logged and never stops the ones after it.
func (a *App) Stop(ctx context.Context) {
	a.cancel()

	steps := append([]closer{
		{name: "http server", fn: a.httpServer.Shutdown},
		{name: "background loops", fn: func(context.Context) error { return a.goroutine.Wait() }},
	}, a.closers...)

	a.runClosers(ctx, steps)
	slog.InfoContext(ctx, "application stopped")
}
