package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" //nolint:revive,nolintlint // Registers the "pgx" driver.
)

const postgresAdvisoryLockSalt uint32 = 542384964

// postgresLockTimeout is the number of seconds to wait for the migration lock.
const postgresLockTimeout = 10

// Postgres is the dialect of PostgreSQL databases. URIs are either
// "postgres://" URLs or keyword/value connection strings.
var Postgres Dialect = postgresDialect{}

type postgresDialect struct{}

var _ Locker = postgresDialect{}

func (postgresDialect) Name() string       { return "postgres" }
func (postgresDialect) DriverName() string { return "pgx" }

func (postgresDialect) DSN(uri string) (string, error) {
	if _, err := pgconn.ParseConfig(uri); err != nil {
		return "", err
	}
	return uri, nil
}

func (postgresDialect) DisplayName(uri string) string {
	return redactURI(uri)
}

func (p postgresDialect) QuoteTable(name string) string {
	if schema, table, ok := strings.Cut(name, "."); ok {
		return p.quoteIdent(schema) + "." + p.quoteIdent(table)
	}
	return p.quoteIdent(name)
}

func (postgresDialect) quoteIdent(ident string) string {
	var sb strings.Builder
	sb.WriteRune('"')
	for _, r := range ident {
		switch {
		case unicode.IsSpace(r), r == ';':
			continue
		case r == '"':
			sb.WriteString(`""`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteRune('"')
	return sb.String()
}

func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) CreateLedgerSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id VARCHAR(255) NOT NULL,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMP WITH TIME ZONE NOT NULL,
	seq INTEGER NOT NULL
)`, table)
}

func (postgresDialect) Prepare(context.Context, *sql.DB) error { return nil }

// Unavailable matches servers that are starting up, shutting down or out of
// connection slots.
func (postgresDialect) Unavailable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "57P03", "53300", "57P01":
		return true
	}
	return false
}

// Lock takes a transaction level advisory lock, released on commit or
// rollback. Waiting for it is bounded by a lock_timeout that only applies
// to the lock statement itself.
func (postgresDialect) Lock(ctx context.Context, q Querier, table string) error {
	_, err := q.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%ds'", postgresLockTimeout))
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT pg_advisory_xact_lock(%s)", lockID(table, postgresAdvisoryLockSalt))
	if _, err = q.ExecContext(ctx, query); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
			return fmt.Errorf("%w: timed out waiting for the migration lock", errLockTimeout)
		}
		return err
	}

	_, err = q.ExecContext(ctx, "SET LOCAL lock_timeout TO DEFAULT")
	return err
}
