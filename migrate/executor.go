package migrate

import (
	"context"
	"fmt"
	"log/slog"
)

// Executor runs plans against a single database handle.
type Executor struct {
	backend Backend
	repo    Repository
	dryRun  bool
	logger  *slog.Logger
}

// NewExecutor returns an Executor recording results through backend. If
// dryRun is set, actions are only logged.
func NewExecutor(backend Backend, repo Repository, dryRun bool, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{backend: backend, repo: repo, dryRun: dryRun, logger: logger}
}

type hookSet struct {
	before, main, after Hook
	record              func(ctx context.Context, h Handle, name string) error
	verb                string
}

func (e *Executor) hooks(d Direction) hookSet {
	if d == Revert {
		return hookSet{
			before: HookTestBeforeDown, main: HookDown, after: HookTestAfterDown,
			record: e.backend.PopMigration, verb: "reverting",
		}
	}
	return hookSet{
		before: HookTestBeforeUp, main: HookUp, after: HookTestAfterUp,
		record: e.backend.PushMigration, verb: "upgrading",
	}
}

// Execute runs every action of plan in order against h. In strict mode the
// test hooks surrounding each script body are run as well. The first
// failure aborts the remaining actions.
func (e *Executor) Execute(ctx context.Context, h Handle, plan Plan, strict bool) error {
	for _, action := range plan {
		if err := ctx.Err(); err != nil {
			return err
		}

		script, err := e.repo.LoadScript(ctx, action.Revision.ID())
		if err != nil {
			return fmt.Errorf("failed loading script %s: %w", action.Revision, err)
		}

		hs := e.hooks(action.Direction)
		if e.dryRun {
			e.logger.Info(hs.verb+" (not really)", "script", script.Name)
			continue
		}
		e.logger.Info(hs.verb, "script", script.Name)

		if strict {
			if err = script.Run(ctx, hs.before, h); err != nil {
				return err
			}
		}
		if err = script.Run(ctx, hs.main, h); err != nil {
			return err
		}
		if strict {
			if err = script.Run(ctx, hs.after, h); err != nil {
				return err
			}
		}

		if err = hs.record(ctx, h, script.Name); err != nil {
			return fmt.Errorf("failed recording script %s in the ledger: %w", script.Name, err)
		}
	}

	return nil
}
