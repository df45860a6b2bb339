package cli

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"

	actx "github.com/Shoobx/migrant/app/context"
	aerrors "github.com/Shoobx/migrant/app/errors"
	"github.com/Shoobx/migrant/migrate"
)

// The Status command shows the number of actions needed to bring each
// database to a revision.
type Status struct {
	Database string `arg:"" help:"Name of the database group in the configuration file."`
	Revision string `help:"Target revision. Defaults to the latest script."`
}

// Run the status command.
func (c *Status) Run(appCtx *actx.Context, globals *Globals) error {
	g, err := openGroup(appCtx, c.Database, globals.Workers)
	if err != nil {
		return err
	}
	e, err := g.engine(appCtx, false)
	if err != nil {
		return err
	}

	report, runErr := e.Pending(appCtx.Ctx, c.Revision)
	if report == nil {
		return aerrors.Wrap("failed computing status", runErr, "database", c.Database)
	}

	results := slices.SortedFunc(slices.Values(report.Results), func(a, b migrate.Result) int {
		return cmp.Compare(a.Database, b.Database)
	})
	data := make([][]string, 0, len(results))
	for _, res := range results {
		data = append(data, []string{res.Database, res.Outcome.String(), strconv.Itoa(res.Actions)})
	}
	footer := []string{"", "total", strconv.Itoa(report.Pending())}
	err = renderTable(appCtx.Stdout, []string{"Database", "State", "Pending"}, data, footer, 2)
	if err != nil {
		return aerrors.Wrap("failed writing to stdout", err)
	}

	if pending := report.Pending(); pending > 0 {
		appCtx.Logger.Info(fmt.Sprintf("Pending actions: %d", pending), "revision", report.Target.String())
	} else {
		appCtx.Logger.Info("Up-to-date", "revision", report.Target.String())
	}

	if runErr != nil {
		return aerrors.Wrap("failed computing status", runErr, "database", c.Database)
	}

	return nil
}
