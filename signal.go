package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext derives the context a backup, watch or schedule loop runs
// under. The first SIGINT or SIGTERM cancels it: uploads already sent to
// the store finish or fail on their own and no new file is started. A
// second signal exits at once, abandoning whatever is still in flight.
// The handler is released when parent is done.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, syscall.SIGINT, syscall.SIGTERM)

	go watchInterrupts(parent, ctx, interrupts, cancel, logger)

	return ctx
}

func watchInterrupts(
	parent, ctx context.Context, interrupts chan os.Signal, cancel context.CancelFunc, logger *slog.Logger,
) {
	defer signal.Stop(interrupts)

	select {
	case sig := <-interrupts:
		logger.Info("interrupted, no new files will be backed up",
			slog.String("signal", sig.String()),
		)
		cancel()
	case <-ctx.Done():
		return
	}

	select {
	case sig := <-interrupts:
		logger.Warn("interrupted again, abandoning uploads in flight",
			slog.String("signal", sig.String()),
		)
		os.Exit(1)
	case <-parent.Done():
	}
}
