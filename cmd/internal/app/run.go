package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Run is the server entrypoint used by cmd/tekauth. It returns an error
// instead of exiting so deferred cleanup runs.
func Run() error {
	cfg := LoadConfig()
	log := NewLogger(nil, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log, Deps{})
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

