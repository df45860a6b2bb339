package cli

import (
	"runtime"

	actx "github.com/Shoobx/migrant/app/context"
	aerrors "github.com/Shoobx/migrant/app/errors"
	"github.com/Shoobx/migrant/backend"
	"github.com/Shoobx/migrant/migrate"
	"github.com/Shoobx/migrant/repository"
)

// dbGroup is a configured group of databases along with the backend and the
// script repository serving it.
type dbGroup struct {
	name    string
	backend migrate.Backend
	repo    *repository.Dir
	workers int
}

// openGroup resolves the configuration of the database group name. workers
// overrides the configured number of workers if it's greater than 0.
func openGroup(appCtx *actx.Context, name string, workers int) (*dbGroup, error) {
	cfgFile := appCtx.Config.Path()
	dbCfg, err := appCtx.Config.Database(name)
	if err != nil {
		return nil, aerrors.Wrap("invalid configuration", err, "config_file", cfgFile)
	}

	bcfg := backend.Config{
		URIs:     dbCfg.URIs,
		TestURIs: dbCfg.TestURIs,
		Options:  dbCfg.Options,
	}
	if dbCfg.ConnectTimeout.Valid {
		bcfg.ConnectTimeout = dbCfg.ConnectTimeout.V
	}

	logger := appCtx.Logger.With("database", name)
	b, err := appCtx.Backends.New(dbCfg.Backend.V, bcfg, logger)
	if err != nil {
		return nil, aerrors.Wrap("invalid configuration", err,
			"config_file", cfgFile, "database", name)
	}

	repo := repository.NewDir(appCtx.FS, dbCfg.Repository.V,
		repository.WithExtension(bcfg.Option("extension", defaultExtension(dbCfg.Backend.V))),
		repository.WithLogger(logger),
	)

	g := &dbGroup{name: name, backend: b, repo: repo, workers: runtime.NumCPU()}
	if dbCfg.Workers.Valid {
		g.workers = dbCfg.Workers.V
	}
	if workers > 0 {
		g.workers = workers
	}

	return g, nil
}

// engine creates the migration engine of the group.
func (g *dbGroup) engine(appCtx *actx.Context, dryRun bool) (*migrate.Engine, error) {
	e, err := migrate.New(appCtx.Ctx, g.backend, g.repo,
		migrate.WithWorkers(g.workers),
		migrate.WithDryRun(dryRun),
		migrate.WithLogger(appCtx.Logger.With("database_group", g.name)),
	)
	if err != nil {
		return nil, aerrors.Wrap("failed loading script repository", err,
			"database", g.name, "repository", g.repo.Path())
	}
	return e, nil
}

func defaultExtension(backendName string) string {
	if backendName == "redis" {
		return ".lua"
	}
	return ".sql"
}
