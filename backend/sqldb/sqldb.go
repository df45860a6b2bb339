// Package sqldb provides a Backend for SQL databases reachable through
// database/sql. The ledger is kept in a table of each database, and script
// sections are executed within the transaction of the migration run, so a
// failed run leaves neither schema nor ledger changes behind on databases
// with transactional DDL.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/Shoobx/migrant/backend"
	"github.com/Shoobx/migrant/migrate"
)

// DefaultTable is the name of the ledger table.
const DefaultTable = "_migrant"

var errLockTimeout = errors.New("lock timeout")

// Database is a single SQL database.
type Database struct {
	URI  string
	name string
}

var _ migrate.Database = (*Database)(nil)

func (d *Database) String() string {
	return d.name
}

// Handle is the working session on a Database. It's backed by a connection
// pool of its own and a transaction spanning the whole run.
type Handle struct {
	db    *sql.DB
	tx    *sql.Tx
	table string
}

// Exec runs source within the handle transaction. It allows file-based
// scripts to run against SQL databases.
func (h *Handle) Exec(ctx context.Context, source string) error {
	_, err := h.tx.ExecContext(ctx, source)
	return err
}

// Tx returns the handle transaction, for scripts written in Go.
func (h *Handle) Tx() *sql.Tx {
	return h.tx
}

// Backend is a migrate.Backend for SQL databases.
type Backend struct {
	dialect        Dialect
	uris           []string
	testURIs       []string
	table          string
	connectTimeout time.Duration
	lock           bool
	open           func(driverName, dsn string) (*sql.DB, error)
	timeNow        func() time.Time
	logger         *slog.Logger
}

var _ migrate.Backend = (*Backend)(nil)

// Option is a function that allows configuring the Backend.
type Option func(*Backend)

// WithTable sets the name of the ledger table. It may be schema qualified on
// databases that support it.
func WithTable(name string) Option {
	return func(b *Backend) {
		b.table = name
	}
}

// WithConnectTimeout bounds the time spent reaching each database.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(b *Backend) {
		b.connectTimeout = timeout
	}
}

// WithLock enables the migration lock on dialects that support one. It's
// enabled by default.
func WithLock(lock bool) Option {
	return func(b *Backend) {
		b.lock = lock
	}
}

// WithOpener sets the function used to open connection pools. It defaults
// to sql.Open.
func WithOpener(open func(driverName, dsn string) (*sql.DB, error)) Option {
	return func(b *Backend) {
		b.open = open
	}
}

// WithTimeNow sets the function returning the time recorded in the ledger.
func WithTimeNow(timeNow func() time.Time) Option {
	return func(b *Backend) {
		b.timeNow = timeNow
	}
}

// WithLogger sets the logger used by the Backend.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger.With("component", "sqldb", "dialect", b.dialect.Name())
	}
}

// New returns a Backend for the databases at uris. Test runs use testURIs,
// or uris if there are none.
func New(dialect Dialect, uris, testURIs []string, opts ...Option) *Backend {
	b := &Backend{
		dialect:        dialect,
		uris:           uris,
		testURIs:       testURIs,
		table:          DefaultTable,
		connectTimeout: 10 * time.Second,
		lock:           true,
		open:           sql.Open,
		timeNow:        time.Now,
	}
	opts = append([]Option{WithLogger(slog.Default())}, opts...)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Factory returns a backend.Factory creating Backends for dialect. The
// "table" option sets the ledger table name, and "lock" toggles the
// migration lock.
func Factory(dialect Dialect) backend.Factory {
	return func(cfg backend.Config, logger *slog.Logger) (migrate.Backend, error) {
		lock, err := cfg.BoolOption("lock", true)
		if err != nil {
			return nil, err
		}
		opts := []Option{
			WithTable(cfg.Option("table", DefaultTable)),
			WithLock(lock),
			WithLogger(logger),
		}
		if cfg.ConnectTimeout > 0 {
			opts = append(opts, WithConnectTimeout(cfg.ConnectTimeout))
		}
		for _, uri := range slices.Concat(cfg.URIs, cfg.TestURIs) {
			if _, err := dialect.DSN(uri); err != nil {
				return nil, fmt.Errorf("invalid %s database URI '%s': %w",
					dialect.Name(), dialect.DisplayName(uri), err)
			}
		}
		return New(dialect, cfg.URIs, cfg.TestURIs, opts...), nil
	}
}

func (b *Backend) databases(uris []string) iter.Seq2[migrate.Database, error] {
	return func(yield func(migrate.Database, error) bool) {
		for _, uri := range uris {
			if !yield(&Database{URI: uri, name: b.dialect.DisplayName(uri)}, nil) {
				return
			}
		}
	}
}

// Connections implements migrate.Backend.
func (b *Backend) Connections(_ context.Context) iter.Seq2[migrate.Database, error] {
	return b.databases(b.uris)
}

// TestConnections implements migrate.Backend. Without test URIs the
// regular databases are used.
func (b *Backend) TestConnections(_ context.Context) iter.Seq2[migrate.Database, error] {
	if len(b.testURIs) == 0 {
		return b.databases(b.uris)
	}
	return b.databases(b.testURIs)
}

// Begin implements migrate.Backend. It opens a connection pool, makes sure
// the ledger table exists and starts the transaction of the run. Databases
// that can't be reached within the connect timeout are reported as
// unavailable.
func (b *Backend) Begin(ctx context.Context, db migrate.Database) (_ migrate.Handle, err error) {
	d, ok := db.(*Database)
	if !ok {
		return nil, fmt.Errorf("unsupported database type %T", db)
	}

	dsn, err := b.dialect.DSN(d.URI)
	if err != nil {
		return nil, fmt.Errorf("invalid database URI: %w", err)
	}

	sdb, err := b.open(b.dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed opening database: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sdb.Close()
		}
	}()

	pingCtx, cancel := context.WithTimeout(ctx, b.connectTimeout)
	err = sdb.PingContext(pingCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", migrate.ErrDatabaseUnavailable, err)
	}

	if err = b.dialect.Prepare(ctx, sdb); err != nil {
		return nil, b.wrap("failed preparing database", err)
	}

	table := b.dialect.QuoteTable(b.table)
	if _, err = sdb.ExecContext(ctx, b.dialect.CreateLedgerSQL(table)); err != nil {
		return nil, b.wrap("failed creating ledger table", err)
	}

	tx, err := sdb.BeginTx(ctx, nil)
	if err != nil {
		return nil, b.wrap("failed starting transaction", err)
	}

	if locker, ok := b.dialect.(Locker); ok && b.lock {
		b.logger.Debug("acquiring migration lock", "database", d.name)
		if err = locker.Lock(ctx, tx, b.table); err != nil {
			_ = tx.Rollback()
			if errors.Is(err, errLockTimeout) {
				return nil, fmt.Errorf("%w: %w", migrate.ErrDatabaseUnavailable, err)
			}
			return nil, b.wrap("failed acquiring migration lock", err)
		}
	}

	return &Handle{db: sdb, tx: tx, table: table}, nil
}

// wrap marks err as a database unavailability when the dialect recognizes
// it as such.
func (b *Backend) wrap(msg string, err error) error {
	if b.dialect.Unavailable(err) {
		return fmt.Errorf("%s: %w: %w", msg, migrate.ErrDatabaseUnavailable, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func handle(h migrate.Handle) (*Handle, error) {
	sh, ok := h.(*Handle)
	if !ok {
		return nil, fmt.Errorf("unsupported handle type %T", h)
	}
	return sh, nil
}

// ListMigrations implements migrate.Backend. Names are returned in the order
// they were recorded.
func (b *Backend) ListMigrations(ctx context.Context, h migrate.Handle) ([]string, error) {
	sh, err := handle(h)
	if err != nil {
		return nil, err
	}

	rows, err := sh.tx.QueryContext(ctx,
		fmt.Sprintf("SELECT name FROM %s ORDER BY seq ASC", sh.table))
	if err != nil {
		return nil, fmt.Errorf("failed querying ledger: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed scanning ledger entry: %w", err)
		}
		names = append(names, name)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading ledger: %w", err)
	}

	return names, nil
}

// PushMigration implements migrate.Backend.
func (b *Backend) PushMigration(ctx context.Context, h migrate.Handle, name string) error {
	sh, err := handle(h)
	if err != nil {
		return err
	}

	var seq int64
	err = sh.tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COALESCE(MAX(seq), 0) FROM %s", sh.table)).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed reading ledger sequence: %w", err)
	}

	ph := b.dialect.Placeholder
	query := fmt.Sprintf("INSERT INTO %s (id, name, applied_at, seq) VALUES (%s, %s, %s, %s)",
		sh.table, ph(1), ph(2), ph(3), ph(4))
	_, err = sh.tx.ExecContext(ctx, query,
		migrate.CanonicalID(name), name, b.timeNow().UTC(), seq+1)
	if err != nil {
		return fmt.Errorf("failed inserting ledger entry: %w", err)
	}

	return nil
}

// PopMigration implements migrate.Backend. It removes the earliest entry
// with the canonical identifier of name.
func (b *Backend) PopMigration(ctx context.Context, h migrate.Handle, name string) error {
	sh, err := handle(h)
	if err != nil {
		return err
	}

	ph := b.dialect.Placeholder
	var seq sql.NullInt64
	err = sh.tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT MIN(seq) FROM %s WHERE id = %s", sh.table, ph(1)),
		migrate.CanonicalID(name)).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed reading ledger entry: %w", err)
	}
	if !seq.Valid {
		return fmt.Errorf("migration %s isn't recorded", name)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE seq = %s", sh.table, ph(1))
	if _, err = sh.tx.ExecContext(ctx, query, seq.Int64); err != nil {
		return fmt.Errorf("failed deleting ledger entry: %w", err)
	}

	return nil
}

// Commit implements migrate.Backend.
func (b *Backend) Commit(_ context.Context, h migrate.Handle) error {
	sh, err := handle(h)
	if err != nil {
		return err
	}
	return sh.tx.Commit()
}

// Abort implements migrate.Backend.
func (b *Backend) Abort(_ context.Context, h migrate.Handle) error {
	sh, err := handle(h)
	if err != nil {
		return err
	}
	if err = sh.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Cleanup implements migrate.Backend. It closes the connection pool of the
// handle.
func (b *Backend) Cleanup(_ context.Context, h migrate.Handle) error {
	sh, err := handle(h)
	if err != nil {
		return err
	}
	return sh.db.Close()
}
