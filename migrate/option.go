package migrate

import (
	"fmt"
	"log/slog"
	"runtime"
)

// Option is a function that allows configuring the Engine.
type Option func(*Engine) error

// WithWorkers sets the number of databases processed in parallel. 1 processes
// databases sequentially, in the order the backend yields them.
func WithWorkers(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			return &ConfigError{Msg: fmt.Sprintf("invalid number of workers %d", n)}
		}
		e.workers = n
		return nil
	}
}

// WithDryRun makes the engine log actions instead of performing them.
func WithDryRun(dryRun bool) Option {
	return func(e *Engine) error {
		e.dryRun = dryRun
		return nil
	}
}

// WithLogger sets the logger used by the Engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger.With("component", "migrate")
		return nil
	}
}

// DefaultOptions returns the default Engine options.
func DefaultOptions() []Option {
	return []Option{
		WithWorkers(runtime.NumCPU()),
		WithLogger(slog.Default()),
	}
}
