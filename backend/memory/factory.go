package memory

import (
	"log/slog"
	"strings"

	"github.com/Shoobx/migrant/backend"
	"github.com/Shoobx/migrant/migrate"
)

// Factory creates a Backend with one empty database per configured URI,
// named after the URI without its "memory://" scheme. The databases only
// live as long as the process.
func Factory(cfg backend.Config, logger *slog.Logger) (migrate.Backend, error) {
	dbs := newDBs(cfg.URIs)
	testDBs := newDBs(cfg.TestURIs)
	logger.Debug("created in-memory databases", "count", len(dbs), "test_count", len(testDBs))
	return New(dbs, testDBs...), nil
}

func newDBs(uris []string) []*DB {
	dbs := make([]*DB, 0, len(uris))
	for _, uri := range uris {
		dbs = append(dbs, NewDB(strings.TrimPrefix(uri, "memory://")))
	}
	return dbs
}
