package cli

import (
	actx "github.com/Shoobx/migrant/app/context"
	aerrors "github.com/Shoobx/migrant/app/errors"
	"github.com/Shoobx/migrant/migrate"
)

// The Init command creates the script repository of a database group, and
// lets the backend prepare for it.
type Init struct {
	Database string `arg:"" help:"Name of the database group in the configuration file."`
}

// Run the init command.
func (c *Init) Run(appCtx *actx.Context) error {
	g, err := openGroup(appCtx, c.Database, 0)
	if err != nil {
		return err
	}

	if err = g.repo.Init(); err != nil {
		return aerrors.Wrap("failed initializing repository", err, "repository", g.repo.Path())
	}

	if obs, ok := g.backend.(migrate.RepositoryObserver); ok {
		if err = obs.OnRepoInit(appCtx.Ctx); err != nil {
			return aerrors.Wrap("backend failed initializing repository", err, "database", c.Database)
		}
	}

	appCtx.Logger.Info("initialized repository", "database", c.Database, "repository", g.repo.Path())

	return nil
}
