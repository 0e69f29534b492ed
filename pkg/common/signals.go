package common

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// SetupGracefulShutdown derives a context from parent that is cancelled on
// SIGINT or SIGTERM. Running child processes are killed through it.
// The returned cancel function also stops signal delivery and must be deferred.
func SetupGracefulShutdown(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigc:
			slog.Info("Received signal, shutting down gracefully", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigc)
		cancel()
	}
}
