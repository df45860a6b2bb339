package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"hash/crc32"
	"net/url"
)

// Querier exposes the methods for running SQL queries shared by *sql.DB and
// *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect isolates the differences between SQL databases that the backend
// cares about: connection strings, identifier quoting, placeholders and the
// ledger table definition.
type Dialect interface {
	// Name is the backend name the dialect is registered under.
	Name() string
	// DriverName is the database/sql driver used to open connections.
	DriverName() string
	// DSN converts a configured database URI into a driver connection string.
	DSN(uri string) (string, error)
	// DisplayName renders a database URI for logs, without credentials.
	DisplayName(uri string) string
	// QuoteTable quotes a possibly schema qualified table name.
	QuoteTable(name string) string
	// Placeholder returns the bind parameter at 1-based position n.
	Placeholder(n int) string
	// CreateLedgerSQL returns the statement creating the ledger table if it
	// doesn't exist yet.
	CreateLedgerSQL(table string) string
	// Prepare configures a freshly opened connection pool.
	Prepare(ctx context.Context, db *sql.DB) error
	// Unavailable reports whether err means the database is temporarily
	// unreachable, as opposed to broken.
	Unavailable(err error) bool
}

// Locker is implemented by dialects able to serialize concurrent migration
// runs against the same database. Lock is called within the transaction of a
// handle. The lock is held at least until the transaction ends; dialects
// with session locks keep it until Cleanup closes the connection. Lock
// returns errLockTimeout when another run holds the lock for too long.
type Locker interface {
	Lock(ctx context.Context, q Querier, table string) error
}

// redactURI hides the password of URIs with user info.
func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || u.User == nil {
		return uri
	}
	return u.Redacted()
}

// lockID derives a table specific advisory lock key.
func lockID(table string, salt uint32) string {
	sum := crc32.ChecksumIEEE([]byte(table))
	return fmt.Sprint(sum * salt)
}
