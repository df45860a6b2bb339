package cli

import (
	actx "github.com/Shoobx/migrant/app/context"
	aerrors "github.com/Shoobx/migrant/app/errors"
	"github.com/Shoobx/migrant/migrate"
)

// The Upgrade command migrates every database of a group to a revision.
// Despite its name it also downgrades, when the revision is older than what
// a database has applied.
type Upgrade struct {
	Database string `arg:"" help:"Name of the database group in the configuration file."`
	Revision string `help:"Target revision. Defaults to the latest script."`
	DryRun   bool   `help:"Log the actions instead of performing them."`
}

// Run the upgrade command.
func (c *Upgrade) Run(appCtx *actx.Context, globals *Globals) error {
	g, err := openGroup(appCtx, c.Database, globals.Workers)
	if err != nil {
		return err
	}
	e, err := g.engine(appCtx, c.DryRun)
	if err != nil {
		return err
	}

	report, err := e.Update(appCtx.Ctx, c.Revision)
	if report != nil {
		logSummary(appCtx, report)
	}
	if err != nil {
		return aerrors.Wrap("migration failed", err, "database", c.Database)
	}

	return nil
}

func logSummary(appCtx *actx.Context, report *migrate.Report) {
	args := []any{"revision", report.Target.String(), "databases", len(report.Results)}
	for _, o := range []migrate.Outcome{
		migrate.Initialized, migrate.UpToDate, migrate.Migrated,
		migrate.Tested, migrate.Skipped, migrate.Failed,
	} {
		if n := report.Count(o); n > 0 {
			args = append(args, o.String(), n)
		}
	}
	appCtx.Logger.Info("done", args...)
}
