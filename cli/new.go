package cli

import (
	"strings"

	actx "github.com/Shoobx/migrant/app/context"
	aerrors "github.com/Shoobx/migrant/app/errors"
	"github.com/Shoobx/migrant/migrate"
)

// The New command creates a migration script and appends it to the script
// list of the repository.
type New struct {
	Database string   `arg:"" help:"Name of the database group in the configuration file."`
	Title    []string `arg:"" help:"Short description of the migration."`
}

// Run the new command.
func (c *New) Run(appCtx *actx.Context) error {
	g, err := openGroup(appCtx, c.Database, 0)
	if err != nil {
		return err
	}

	title := strings.Join(c.Title, " ")
	name, err := g.repo.NewScript(title)
	if err != nil {
		return aerrors.Wrap("failed creating script", err,
			"repository", g.repo.Path(), "title", title)
	}

	if obs, ok := g.backend.(migrate.RepositoryObserver); ok {
		if err = obs.OnNewScript(appCtx.Ctx, name); err != nil {
			return aerrors.Wrap("backend failed handling new script", err, "script", name)
		}
	}

	return nil
}
