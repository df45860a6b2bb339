package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/mandelsoft/vfs/pkg/memoryfs"

	"github.com/Shoobx/migrant/app/config"
	actx "github.com/Shoobx/migrant/app/context"
	aerrors "github.com/Shoobx/migrant/app/errors"
	"github.com/Shoobx/migrant/backend/builtin"
	"github.com/Shoobx/migrant/cli"
)

// App is the application.
type App struct {
	name string
	ctx  *actx.Context
	cli  *cli.CLI
	// the logging level is set via the CLI, if the app was initialized with the
	// WithLogger option.
	logLevel *slog.LevelVar
}

// New initializes a new application. configFile is the default path of the
// configuration file, which can be overridden from the command line.
func New(name, configFile string, opts ...Option) (*App, error) {
	defaultCtx := &actx.Context{
		Ctx:      context.Background(),
		FS:       memoryfs.New(),
		Logger:   slog.Default(),
		Backends: builtin.Registry(),
		Stdout:   io.Discard,
		Stderr:   io.Discard,
		Version:  "dev",
	}
	app := &App{name: name, ctx: defaultCtx}

	for _, opt := range opts {
		opt(app)
	}

	var err error
	ver := fmt.Sprintf("%s %s", app.name, app.ctx.Version)
	app.cli, err = cli.New(configFile, ver)
	if err != nil {
		return nil, err
	}

	return app, nil
}

// Run parses args, loads the configuration file and executes the requested
// command.
func (app *App) Run(args []string) error {
	if err := app.cli.Parse(args); err != nil {
		return err
	}

	if app.logLevel != nil {
		app.logLevel.Set(app.cli.Log.Level)
	}

	cfg := config.NewConfig(app.ctx.FS, app.cli.ConfigFile)
	if err := cfg.Load(); err != nil {
		return aerrors.Wrap("failed loading configuration", err, "config_file", cfg.Path())
	}
	app.ctx.Config = cfg

	return app.cli.Execute(app.ctx)
}

// Logger returns the logger of the application.
func (app *App) Logger() *slog.Logger {
	return app.ctx.Logger
}
