// Package noop provides a Backend without databases. Every run against it
// completes without doing anything, which is useful to validate a script
// repository.
package noop

import (
	"context"
	"errors"
	"iter"

	"github.com/Shoobx/migrant/migrate"
)

var errNoDatabases = errors.New("noop backend has no databases")

// Backend is a migrate.Backend that yields no databases.
type Backend struct{}

var _ migrate.Backend = Backend{}

// New returns a new Backend.
func New() Backend {
	return Backend{}
}

func empty(func(migrate.Database, error) bool) {}

// Connections implements migrate.Backend.
func (Backend) Connections(context.Context) iter.Seq2[migrate.Database, error] {
	return empty
}

// TestConnections implements migrate.Backend.
func (Backend) TestConnections(context.Context) iter.Seq2[migrate.Database, error] {
	return empty
}

// Begin implements migrate.Backend.
func (Backend) Begin(context.Context, migrate.Database) (migrate.Handle, error) {
	return nil, errNoDatabases
}

// ListMigrations implements migrate.Backend.
func (Backend) ListMigrations(context.Context, migrate.Handle) ([]string, error) {
	return nil, errNoDatabases
}

// PushMigration implements migrate.Backend.
func (Backend) PushMigration(context.Context, migrate.Handle, string) error {
	return errNoDatabases
}

// PopMigration implements migrate.Backend.
func (Backend) PopMigration(context.Context, migrate.Handle, string) error {
	return errNoDatabases
}

// Commit implements migrate.Backend.
func (Backend) Commit(context.Context, migrate.Handle) error {
	return errNoDatabases
}

// Abort implements migrate.Backend.
func (Backend) Abort(context.Context, migrate.Handle) error {
	return errNoDatabases
}

// Cleanup implements migrate.Backend.
func (Backend) Cleanup(context.Context, migrate.Handle) error {
	return errNoDatabases
}
