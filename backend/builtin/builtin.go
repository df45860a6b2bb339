// Package builtin registers the backends shipped with migrant.
package builtin

import (
	"log/slog"

	"github.com/Shoobx/migrant/backend"
	"github.com/Shoobx/migrant/backend/memory"
	"github.com/Shoobx/migrant/backend/noop"
	"github.com/Shoobx/migrant/backend/redis"
	"github.com/Shoobx/migrant/backend/sqldb"
	"github.com/Shoobx/migrant/migrate"
)

// Registry returns a registry of every built-in backend.
func Registry() *backend.Registry {
	r := backend.NewRegistry()
	for name, factory := range map[string]backend.Factory{
		"noop": func(backend.Config, *slog.Logger) (migrate.Backend, error) {
			return noop.New(), nil
		},
		"memory":   memory.Factory,
		"sqlite":   sqldb.Factory(sqldb.SQLite),
		"postgres": sqldb.Factory(sqldb.Postgres),
		"mysql":    sqldb.Factory(sqldb.MySQL),
		"redis":    redis.Factory,
	} {
		if err := r.Register(name, factory); err != nil {
			panic(err)
		}
	}
	return r
}
