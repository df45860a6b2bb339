package context

import (
	"context"
	"io"
	"log/slog"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/Shoobx/migrant/app/config"
	"github.com/Shoobx/migrant/backend"
)

// Context contains common objects used by the application. It is passed around
// the application to avoid direct dependencies on external systems, and make
// testing easier.
type Context struct {
	Ctx      context.Context   // global context
	FS       vfs.FileSystem    // filesystem
	Logger   *slog.Logger      // global logger
	Config   *config.Config    // loaded by the CLI before running a command
	Backends *backend.Registry // available migration backends

	// Standard streams
	Stdout io.Writer
	Stderr io.Writer

	Version string
}
