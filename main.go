package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shandysiswandi/queuetick/internal/app"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	a, err := app.New()
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}

	code := 0
	if err := a.Run(ctx); err != nil {
		slog.Error("http server failed", "error", err)
		code = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	a.Stop(shutdownCtx)
	cancel()

	os.Exit(code)
}
