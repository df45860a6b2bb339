// Package memory provides a Backend whose databases live in process memory.
// It's used in tests and to rehearse a migration run without any database.
package memory

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/Shoobx/migrant/migrate"
)

// DB is an in-memory database. Its ledger and the sources executed against
// it are protected by a mutex, so tests can inspect them while a run is in
// progress.
type DB struct {
	Name string

	mx          sync.Mutex
	migrations  []string
	executed    []string
	unavailable bool
	failPush    error
}

var _ migrate.Database = (*DB)(nil)

// NewDB returns a DB with the given ledger.
func NewDB(name string, migrations ...string) *DB {
	return &DB{Name: name, migrations: migrations}
}

func (d *DB) String() string {
	return d.Name
}

// Migrations returns a copy of the ledger.
func (d *DB) Migrations() []string {
	d.mx.Lock()
	defer d.mx.Unlock()
	return slices.Clone(d.migrations)
}

// SetMigrations replaces the ledger.
func (d *DB) SetMigrations(migrations ...string) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.migrations = slices.Clone(migrations)
}

// Executed returns the script sources executed against the database.
func (d *DB) Executed() []string {
	d.mx.Lock()
	defer d.mx.Unlock()
	return slices.Clone(d.executed)
}

// SetUnavailable makes Begin fail with migrate.ErrDatabaseUnavailable.
func (d *DB) SetUnavailable(unavailable bool) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.unavailable = unavailable
}

// SetPushError makes PushMigration fail with err.
func (d *DB) SetPushError(err error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.failPush = err
}

// Handle is the working session on a DB. Ledger changes are staged on the
// handle and only become visible on the DB after Commit.
type Handle struct {
	DB         *DB
	migrations []string
	executed   []string
	done       bool
}

// Exec records source as executed. It allows file-based scripts to run
// against in-memory databases.
func (h *Handle) Exec(_ context.Context, source string) error {
	h.executed = append(h.executed, source)
	return nil
}

// Backend manages a fixed set of in-memory databases.
type Backend struct {
	dbs     []*DB
	testDBs []*DB

	mx        sync.Mutex
	repoInits int
	newScript []string
}

var (
	_ migrate.Backend            = (*Backend)(nil)
	_ migrate.RepositoryObserver = (*Backend)(nil)
)

// New returns a Backend managing dbs. Test runs use testDBs, or dbs if
// testDBs is empty.
func New(dbs []*DB, testDBs ...*DB) *Backend {
	return &Backend{dbs: dbs, testDBs: testDBs}
}

// DBs returns the managed databases.
func (b *Backend) DBs() []*DB {
	return b.dbs
}

func seq(dbs []*DB) iter.Seq2[migrate.Database, error] {
	return func(yield func(migrate.Database, error) bool) {
		for _, db := range dbs {
			if !yield(db, nil) {
				return
			}
		}
	}
}

// Connections implements migrate.Backend.
func (b *Backend) Connections(_ context.Context) iter.Seq2[migrate.Database, error] {
	return seq(b.dbs)
}

// TestConnections implements migrate.Backend.
func (b *Backend) TestConnections(_ context.Context) iter.Seq2[migrate.Database, error] {
	if len(b.testDBs) == 0 {
		return seq(b.dbs)
	}
	return seq(b.testDBs)
}

// Begin implements migrate.Backend.
func (b *Backend) Begin(_ context.Context, db migrate.Database) (migrate.Handle, error) {
	mdb, ok := db.(*DB)
	if !ok {
		return nil, fmt.Errorf("unsupported database type %T", db)
	}
	mdb.mx.Lock()
	defer mdb.mx.Unlock()
	if mdb.unavailable {
		return nil, fmt.Errorf("%s: %w", mdb.Name, migrate.ErrDatabaseUnavailable)
	}

	return &Handle{DB: mdb, migrations: slices.Clone(mdb.migrations)}, nil
}

func handle(h migrate.Handle) (*Handle, error) {
	mh, ok := h.(*Handle)
	if !ok {
		return nil, fmt.Errorf("unsupported handle type %T", h)
	}
	if mh.done {
		return nil, errors.New("handle is already committed or aborted")
	}
	return mh, nil
}

// ListMigrations implements migrate.Backend.
func (b *Backend) ListMigrations(_ context.Context, h migrate.Handle) ([]string, error) {
	mh, err := handle(h)
	if err != nil {
		return nil, err
	}
	return slices.Clone(mh.migrations), nil
}

// PushMigration implements migrate.Backend.
func (b *Backend) PushMigration(_ context.Context, h migrate.Handle, name string) error {
	mh, err := handle(h)
	if err != nil {
		return err
	}
	mh.DB.mx.Lock()
	failErr := mh.DB.failPush
	mh.DB.mx.Unlock()
	if failErr != nil {
		return failErr
	}
	mh.migrations = append(mh.migrations, name)
	return nil
}

// PopMigration implements migrate.Backend. The first ledger entry with the
// same canonical identifier as name is removed.
func (b *Backend) PopMigration(_ context.Context, h migrate.Handle, name string) error {
	mh, err := handle(h)
	if err != nil {
		return err
	}
	id := migrate.CanonicalID(name)
	idx := slices.IndexFunc(mh.migrations, func(m string) bool {
		return migrate.CanonicalID(m) == id
	})
	if idx < 0 {
		return fmt.Errorf("migration %s isn't recorded", name)
	}
	mh.migrations = slices.Delete(mh.migrations, idx, idx+1)
	return nil
}

// Commit implements migrate.Backend.
func (b *Backend) Commit(_ context.Context, h migrate.Handle) error {
	mh, err := handle(h)
	if err != nil {
		return err
	}
	mh.DB.mx.Lock()
	defer mh.DB.mx.Unlock()
	mh.DB.migrations = mh.migrations
	mh.DB.executed = append(mh.DB.executed, mh.executed...)
	mh.done = true
	return nil
}

// Abort implements migrate.Backend.
func (b *Backend) Abort(_ context.Context, h migrate.Handle) error {
	mh, err := handle(h)
	if err != nil {
		return err
	}
	mh.done = true
	return nil
}

// Cleanup implements migrate.Backend.
func (b *Backend) Cleanup(_ context.Context, h migrate.Handle) error {
	if _, ok := h.(*Handle); !ok {
		return fmt.Errorf("unsupported handle type %T", h)
	}
	return nil
}

// OnRepoInit implements migrate.RepositoryObserver.
func (b *Backend) OnRepoInit(_ context.Context) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.repoInits++
	return nil
}

// OnNewScript implements migrate.RepositoryObserver.
func (b *Backend) OnNewScript(_ context.Context, name string) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.newScript = append(b.newScript, name)
	return nil
}

// RepoInits returns how many times the repository was initialized.
func (b *Backend) RepoInits() int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.repoInits
}

// NewScripts returns the names of the scripts created so far.
func (b *Backend) NewScripts() []string {
	b.mx.Lock()
	defer b.mx.Unlock()
	return slices.Clone(b.newScript)
}
