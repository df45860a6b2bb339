package cli

import (
	actx "github.com/Shoobx/migrant/app/context"
	aerrors "github.com/Shoobx/migrant/app/errors"
)

// The Test command runs the migrations towards a revision on the test
// databases and reverts them, twice, with the script test hooks enabled.
type Test struct {
	Database string `arg:"" help:"Name of the database group in the configuration file."`
	Revision string `help:"Target revision. Defaults to the latest script."`
}

// Run the test command.
func (c *Test) Run(appCtx *actx.Context, globals *Globals) error {
	g, err := openGroup(appCtx, c.Database, globals.Workers)
	if err != nil {
		return err
	}
	e, err := g.engine(appCtx, false)
	if err != nil {
		return err
	}

	report, err := e.Test(appCtx.Ctx, c.Revision)
	if report != nil {
		logSummary(appCtx, report)
	}
	if err != nil {
		return aerrors.Wrap("migration test failed", err, "database", c.Database)
	}

	return nil
}
