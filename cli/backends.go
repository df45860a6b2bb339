package cli

import (
	"fmt"

	actx "github.com/Shoobx/migrant/app/context"
	aerrors "github.com/Shoobx/migrant/app/errors"
)

// The Backends command lists the names of the available backends.
type Backends struct{}

// Run the backends command.
func (c *Backends) Run(appCtx *actx.Context) error {
	for _, name := range appCtx.Backends.Names() {
		if _, err := fmt.Fprintln(appCtx.Stdout, name); err != nil {
			return aerrors.Wrap("failed writing to stdout", err)
		}
	}
	return nil
}
