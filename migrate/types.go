package migrate

import (
	"context"
	"fmt"
	"iter"
)

// Database is an opaque database reference yielded by a Backend. The engine
// only ever uses its string form, for logging and reporting.
type Database interface {
	fmt.Stringer
}

// Handle is an opaque working session on a Database, returned by
// Backend.Begin. It is only ever used by the worker that began it.
type Handle any

// Backend is the adapter between the engine and a family of databases. It
// owns the ledger of applied migrations. Implementations must be safe for
// concurrent use across distinct handles.
type Backend interface {
	// Connections lazily yields the databases to migrate.
	Connections(ctx context.Context) iter.Seq2[Database, error]
	// TestConnections lazily yields the databases used by test runs.
	TestConnections(ctx context.Context) iter.Seq2[Database, error]
	// Begin starts working on db. It must return an error wrapping
	// ErrDatabaseUnavailable if db can't currently be reached.
	Begin(ctx context.Context, db Database) (Handle, error)
	// ListMigrations returns the names of the migrations recorded as applied.
	ListMigrations(ctx context.Context, h Handle) ([]string, error)
	// PushMigration records name as applied.
	PushMigration(ctx context.Context, h Handle, name string) error
	// PopMigration records name as reverted.
	PopMigration(ctx context.Context, h Handle, name string) error
	Commit(ctx context.Context, h Handle) error
	Abort(ctx context.Context, h Handle) error
	// Cleanup releases every resource held by h. It is always called.
	Cleanup(ctx context.Context, h Handle) error
}

// RepositoryObserver is implemented by backends that want to react to
// changes of the script repository.
type RepositoryObserver interface {
	OnRepoInit(ctx context.Context) error
	OnNewScript(ctx context.Context, name string) error
}

// Repository provides the ordered script sequence and the scripts.
type Repository interface {
	// ScriptIDs returns the canonical script identifiers in migration order.
	ScriptIDs(ctx context.Context) ([]string, error)
	// LoadScript returns the script with the given canonical identifier. It
	// must return an error matching ErrScriptNotFound if there is none.
	LoadScript(ctx context.Context, id string) (*Script, error)
}
