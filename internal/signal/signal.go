// Package signal turns process termination signals into context cancellation.
package signal

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/samsaffron/markview/internal/logger"
)

// Signals are the signals that end NotifyContext contexts.
var Signals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// NotifyContext returns a context that is cancelled when one of Signals
// arrives. The returned stop function releases the handler and cancels the
// context.
func NotifyContext() (context.Context, context.CancelFunc) {
	return notify(context.Background(), Signals...)
}

func notify(parent context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	go func() {
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			logger.Logger.Debug("shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
