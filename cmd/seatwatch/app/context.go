package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/agentstation/seatwatch/pkg/constants"
)

// ContextWithSignals creates a context that is cancelled when the application
// receives an interrupt or termination signal. A running cycle finishes its
// current prefix; serve and deliver begin their graceful shutdown.
func ContextWithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// ShutdownContext bounds the time spent closing the store and queue.
// It is never derived from the signal context, which is already done by
// the time shutdown starts.
func ShutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), constants.ShutdownTimeout)
}
