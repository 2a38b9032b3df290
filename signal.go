package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// sighupChannel returns a buffered channel subscribed to SIGHUP. The caller
// owns the subscription and releases it with signal.Stop.
func sighupChannel() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)

	return ch
}

// shutdownContext returns a context that cancels on the first SIGINT or
// SIGTERM so the supervisor can finish its current cycle cleanly. Once the
// first signal lands, the handler is released again: a second signal gets
// the default disposition and kills the process immediately, so a hung
// shutdown is always escapable.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-ctx.Done()

		// Restore default signal delivery whether we got here via a signal
		// or via parent cancellation.
		stop()

		if parent.Err() == nil {
			logger.Info("shutdown signal received, finishing current cycle; repeat to force quit")
		}
	}()

	return ctx
}
