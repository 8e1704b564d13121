package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// exitInterrupted is the conventional status for a process ended by SIGINT.
const exitInterrupted = 130

// shutdownContext returns a context canceled by the first SIGINT/SIGTERM.
// finishing says what the command completes before exiting ("the current
// upload", "open requests") and is logged when the signal arrives. A
// second signal exits at once with status 130.
func shutdownContext(parent context.Context, logger *slog.Logger, finishing string) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		var first os.Signal

		select {
		case first = <-sigCh:
		case <-ctx.Done():
			return
		}

		logger.Info("interrupted, finishing "+finishing+" (interrupt again to exit now)",
			slog.String("signal", first.String()),
		)
		cancel()

		select {
		case <-sigCh:
			logger.Warn("second interrupt, exiting")
			os.Exit(exitInterrupted)
		case <-parent.Done():
		}
	}()

	return ctx
}
