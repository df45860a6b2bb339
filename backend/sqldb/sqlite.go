package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/go-sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLite is the dialect of SQLite databases. URIs are file paths, optionally
// prefixed by "sqlite://", or any DSN accepted by the driver, such as
// "file:app.db?_pragma=busy_timeout(5000)".
var SQLite Dialect = sqliteDialect{}

type sqliteDialect struct{}

func (sqliteDialect) Name() string       { return "sqlite" }
func (sqliteDialect) DriverName() string { return "sqlite" }

func (sqliteDialect) DSN(uri string) (string, error) {
	dsn := strings.TrimPrefix(uri, "sqlite://")
	if dsn == "" {
		return "", errors.New("empty SQLite path")
	}
	return dsn, nil
}

func (sqliteDialect) DisplayName(uri string) string {
	return strings.TrimPrefix(uri, "sqlite://")
}

func (sqliteDialect) QuoteTable(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) CreateLedgerSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT NOT NULL,
	name TEXT NOT NULL,
	applied_at DATETIME NOT NULL,
	seq INTEGER NOT NULL
)`, table)
}

// Prepare limits the pool to a single connection, so that in-memory
// databases are shared by the ledger setup and the handle transaction, and
// enables foreign key enforcement.
func (sqliteDialect) Prepare(ctx context.Context, db *sql.DB) error {
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		return fmt.Errorf("failed enabling foreign key enforcement: %w", err)
	}
	return nil
}

func (sqliteDialect) Unavailable(err error) bool {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	switch sqlErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN:
		return true
	}
	return false
}
