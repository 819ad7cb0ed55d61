// Package run drives a service's main loop under SIGINT/SIGTERM.
package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const defaultGrace = 15 * time.Second

type Runner struct {
	Logger *zap.Logger
	// Grace bounds how long WithSignals waits for start to return after a
	// shutdown signal.
	Grace time.Duration
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log, Grace: defaultGrace}
}

// WithSignals runs start with a context cancelled on SIGINT/SIGTERM and
// returns the process exit code.
func (r *Runner) WithSignals(start func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return r.run(ctx, start)
}

func (r *Runner) run(ctx context.Context, start func(ctx context.Context) error) int {
	errCh := make(chan error, 1)
	go func() {
		errCh <- start(ctx)
	}()

	select {
	case <-ctx.Done():
		r.Logger.Info("shutdown signal received")
		select {
		case err := <-errCh:
			return r.exitCode(err)
		case <-time.After(r.grace()):
			r.Logger.Warn("shutdown grace period exceeded", zap.Duration("grace", r.grace()))
			return 1
		}
	case err := <-errCh:
		return r.exitCode(err)
	}
}

func (r *Runner) exitCode(err error) int {
	if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
		return 0
	}
	r.Logger.Error("service exited with error", zap.Error(err))
	return 1
}

func (r *Runner) grace() time.Duration {
	if r.Grace <= 0 {
		return defaultGrace
	}
	return r.Grace
}

func Exit(code int) {
	os.Exit(code)
}
