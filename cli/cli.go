package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/alecthomas/kong"

	actx "github.com/Shoobx/migrant/app/context"
)

// CLI is the command line interface of migrant.
type CLI struct {
	Init     Init     `kong:"cmd,help='Create the script repository of a database group.'"`
	New      New      `kong:"cmd,help='Create a new migration script.'"`
	Status   Status   `kong:"cmd,help='Show the migrations pending on each database.'"`
	Upgrade  Upgrade  `kong:"cmd,help='Migrate databases to a revision.'"`
	Test     Test     `kong:"cmd,help='Check that upgrades and downgrades work on the test databases.'"`
	Backends Backends `kong:"cmd,help='List the available backends.'"`

	Log struct {
		Level slog.Level `enum:"DEBUG,INFO,WARN,ERROR" default:"INFO" help:"Set the app logging level."`
	} `embed:"" prefix:"log-"`
	// Configuration is managed separately from the CLI, so kong.ConfigFlag
	// isn't used.
	ConfigFile string           `kong:"default='${configFile}',help='Path to the migrant configuration file.'"`
	Workers    int              `kong:"help='Number of databases migrated in parallel. Overrides the configuration.'"`
	Version    kong.VersionFlag `kong:"help='Output version and exit.'"`

	kong *kong.Kong
	kctx *kong.Context
}

// Globals are the global flags passed to every command.
type Globals struct {
	Workers int
}

// New initializes the command-line interface.
func New(configFilePath, version string) (*CLI, error) {
	c := &CLI{}
	kparser, err := kong.New(c,
		kong.Name("migrant"),
		kong.Description("Database-agnostic migration tool."),
		kong.UsageOnError(),
		kong.DefaultEnvars("MIGRANT"),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			Summary:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"configFile": configFilePath,
			"version":    version,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed creating the Kong parser: %w", err)
	}

	c.kong = kparser

	return c, nil
}

// Execute starts the command execution. Parse must be called before this method.
func (c *CLI) Execute(appCtx *actx.Context) error {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	c.kong.Stdout = appCtx.Stdout
	c.kong.Stderr = appCtx.Stderr

	//nolint:wrapcheck // This is fine.
	return c.kctx.Run(appCtx, &Globals{Workers: c.Workers})
}

// Parse the given command line arguments. This method must be called before
// Execute.
func (c *CLI) Parse(args []string) error {
	kctx, err := c.kong.Parse(args)
	if err != nil {
		return fmt.Errorf("failed parsing CLI arguments: %w", err)
	}
	c.kctx = kctx

	return nil
}

// Command returns the full path of the executed command.
func (c *CLI) Command() string {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	cmdPath := []string{}
	for _, p := range c.kctx.Path {
		if p.Command != nil {
			cmdPath = append(cmdPath, p.Command.Name)
		}
	}

	return strings.Join(cmdPath, " ")
}
