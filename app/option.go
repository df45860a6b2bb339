package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/lmittmann/tint"
	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/Shoobx/migrant/backend"
)

// Option is a function that allows configuring the application.
type Option func(*App)

// WithBackends sets the registry of available backends.
func WithBackends(reg *backend.Registry) Option {
	return func(app *App) {
		app.ctx.Backends = reg
	}
}

// WithContext sets the main context.
func WithContext(ctx context.Context) Option {
	return func(app *App) {
		app.ctx.Ctx = ctx
	}
}

// WithFDs sets the output streams used by the application.
func WithFDs(stdout, stderr io.Writer) Option {
	return func(app *App) {
		app.ctx.Stdout = stdout
		app.ctx.Stderr = stderr
	}
}

// WithFS sets the filesystem used by the application.
func WithFS(fs vfs.FileSystem) Option {
	return func(app *App) {
		app.ctx.FS = fs
	}
}

// WithLogger initializes the logger used by the application. It writes to
// the stderr set by WithFDs, so it must come after it.
func WithLogger(isStderrTTY bool) Option {
	return func(app *App) {
		lvl := &slog.LevelVar{}
		lvl.Set(slog.LevelInfo)
		app.logLevel = lvl
		app.ctx.Logger = slog.New(
			tint.NewHandler(app.ctx.Stderr, &tint.Options{
				Level:      lvl,
				NoColor:    !isStderrTTY,
				TimeFormat: "2006-01-02 15:04:05.000",
			}),
		)
	}
}

// WithVersion sets the version reported by --version.
func WithVersion(version string) Option {
	return func(app *App) {
		app.ctx.Version = version
	}
}
