package migrate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/nrednav/cuid2"
	"golang.org/x/sync/errgroup"
)

// Engine migrates every database of a Backend using the scripts of a
// Repository. The script sequence is loaded once, when the Engine is
// created, and shared read-only by all workers.
type Engine struct {
	backend Backend
	repo    Repository
	index   *Index
	workers int
	dryRun  bool
	logger  *slog.Logger
}

// New returns a new Engine.
func New(ctx context.Context, backend Backend, repo Repository, opts ...Option) (*Engine, error) {
	if backend == nil {
		return nil, &ConfigError{Msg: "backend is required"}
	}
	if repo == nil {
		return nil, &ConfigError{Msg: "script repository is required"}
	}

	e := &Engine{backend: backend, repo: repo}

	opts = append(DefaultOptions(), opts...)
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	ids, err := repo.ScriptIDs(ctx)
	if err != nil {
		return nil, &ConfigError{Msg: "failed listing scripts", Err: err}
	}
	if e.index, err = NewIndex(ids); err != nil {
		return nil, err
	}

	return e, nil
}

// Index returns the script sequence the Engine works with.
func (e *Engine) Index() *Index {
	return e.index
}

type mode int

const (
	modeStatus mode = iota
	modeUpdate
	modeTest
)

func (m mode) String() string {
	switch m {
	case modeStatus:
		return "status"
	case modeUpdate:
		return "update"
	default:
		return "test"
	}
}

// Status returns the number of actions needed to bring every database to
// target. An empty target means the latest revision.
func (e *Engine) Status(ctx context.Context, target string) (int, error) {
	report, err := e.Pending(ctx, target)
	if report == nil {
		return 0, err
	}
	return report.Pending(), err
}

// Pending computes the plan of every database without executing it.
// Databases with an empty ledger are reported as Uninitialized and are left
// untouched.
func (e *Engine) Pending(ctx context.Context, target string) (*Report, error) {
	return e.run(ctx, modeStatus, target)
}

// Update brings every database to target. Databases with an empty ledger
// are stamped with the full script sequence instead, without running any
// script.
//
// A failing database doesn't stop the others. The returned error joins the
// failure of every database, and the Report details each one.
func (e *Engine) Update(ctx context.Context, target string) (*Report, error) {
	return e.run(ctx, modeUpdate, target)
}

// Test runs the plan towards target on every test database and then reverts
// it, twice, with the script test hooks enabled. This checks that downgrades
// really undo upgrades, and that upgrades still work after a downgrade.
func (e *Engine) Test(ctx context.Context, target string) (*Report, error) {
	return e.run(ctx, modeTest, target)
}

func (e *Engine) run(ctx context.Context, m mode, target string) (*Report, error) {
	rev, err := e.index.Resolve(target)
	if err != nil {
		return nil, err
	}

	runID := cuid2.Generate()
	logger := e.logger.With("run_id", runID, "mode", m.String())
	logger.Debug("starting run", "target", rev.ID(), "workers", e.workers, "dry_run", e.dryRun)

	var conns iter.Seq2[Database, error]
	if m == modeTest {
		conns = e.backend.TestConnections(ctx)
	} else {
		conns = e.backend.Connections(ctx)
	}

	report := &Report{RunID: runID, Target: rev}
	var (
		mx      sync.Mutex
		g       errgroup.Group
		connErr error
	)
	g.SetLimit(e.workers)

	for db, err := range conns {
		if err != nil {
			connErr = fmt.Errorf("failed enumerating databases: %w", err)
			break
		}
		g.Go(func() error {
			res := e.process(ctx, m, db, rev, logger)
			mx.Lock()
			report.Results = append(report.Results, res)
			mx.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("run finished",
		"databases", len(report.Results),
		"failed", report.Count(Failed),
		"skipped", report.Count(Skipped),
	)

	return report, errors.Join(connErr, report.Err())
}

// process handles one database end to end. Failures are contained in the
// returned Result.
func (e *Engine) process(
	ctx context.Context, m mode, db Database, target Revision, logger *slog.Logger,
) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("recovered from panic", "panic", p)
			res.Outcome = Failed
			res.Err = fmt.Errorf("panic: %v", p)
		}
	}()

	res.Database = db.String()
	logger = logger.With("database", res.Database)
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	logger.Debug("preparing migrations")
	h, err := e.backend.Begin(ctx, db)
	if err != nil {
		if errors.Is(err, ErrDatabaseUnavailable) {
			logger.Warn("skipping unavailable database", "error", err)
			res.Outcome = Skipped
			res.Err = err
			return res
		}
		logger.Error("failed connecting to database", "error", err)
		res.Outcome = Failed
		res.Err = fmt.Errorf("failed beginning work: %w", err)
		return res
	}
	defer func() {
		if cerr := e.backend.Cleanup(ctx, h); cerr != nil {
			logger.Warn("failed cleaning up", "error", cerr)
		}
	}()

	outcome, actions, err := e.work(ctx, m, h, target, logger)
	res.Actions = actions
	if err != nil {
		logger.Error("aborting", "error", err)
		if aerr := e.backend.Abort(ctx, h); aerr != nil {
			logger.Error("failed aborting", "error", aerr)
		}
		res.Outcome = Failed
		res.Err = err
		return res
	}

	if err = e.backend.Commit(ctx, h); err != nil {
		logger.Error("failed committing", "error", err)
		res.Outcome = Failed
		res.Err = fmt.Errorf("failed committing: %w", err)
		return res
	}
	res.Outcome = outcome

	return res
}

func (e *Engine) work(
	ctx context.Context, m mode, h Handle, target Revision, logger *slog.Logger,
) (outcome Outcome, actions int, err error) {
	defer func() {
		if p := recover(); p != nil {
			outcome = Failed
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	applied, err := e.backend.ListMigrations(ctx, h)
	if err != nil {
		return Failed, 0, fmt.Errorf("failed listing applied migrations: %w", err)
	}
	if len(applied) == 0 {
		if m == modeStatus {
			return Uninitialized, 0, nil
		}
		if err = e.stamp(ctx, h, logger); err != nil {
			return Failed, 0, err
		}
		return Initialized, 0, nil
	}

	plan := NewPlanner(e.index, logger).Calc(applied, target)
	actions = len(plan)
	logger.Debug("computed plan", "plan", plan.String())

	exec := NewExecutor(e.backend, e.repo, e.dryRun, logger)
	switch m {
	case modeStatus:
		if actions == 0 {
			return UpToDate, 0, nil
		}
		return Pending, actions, nil
	case modeUpdate:
		if actions == 0 {
			logger.Info("database is up-to-date")
			return UpToDate, 0, nil
		}
		logger.Info("starting migration", "actions", actions, "target", target.ID())
		if err = exec.Execute(ctx, h, plan, false); err != nil {
			return Failed, actions, err
		}
		logger.Info("migration completed")
		return Migrated, actions, nil
	}

	reverted := plan.Revert()
	for pass := 1; pass <= 2; pass++ {
		logger.Info("testing upgrade", "pass", pass)
		if err = exec.Execute(ctx, h, plan, true); err != nil {
			return Failed, actions, err
		}
		logger.Info("testing downgrade", "pass", pass)
		if err = exec.Execute(ctx, h, reverted, true); err != nil {
			return Failed, actions, err
		}
	}
	logger.Info("testing completed")

	return Tested, actions, nil
}

// stamp records the full script sequence in the ledger of a database that
// has none, without running any script. The database is assumed to already
// be at the latest revision.
func (e *Engine) stamp(ctx context.Context, h Handle, logger *slog.Logger) error {
	revs := e.index.Revisions()
	names := make([]string, 0, len(revs))
	names = append(names, InitialName)
	for _, rev := range revs[1:] {
		script, err := e.repo.LoadScript(ctx, rev.ID())
		if err != nil {
			return fmt.Errorf("failed loading script %s: %w", rev, err)
		}
		names = append(names, script.Name)
	}

	latest := names[len(names)-1]
	if e.dryRun {
		logger.Info("initializing migrations (not really)", "assumed_revision", latest)
		return nil
	}
	logger.Info("initializing migrations", "assumed_revision", latest)

	for _, name := range names {
		if err := e.backend.PushMigration(ctx, h, name); err != nil {
			return fmt.Errorf("failed stamping %s: %w", name, err)
		}
	}

	return nil
}
