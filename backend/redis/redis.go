// Package redis provides a Backend for Redis servers. The ledger of each
// database is a list, and script sections are Lua scripts run with EVAL.
//
// Ledger changes are queued and applied atomically on Commit, which fails if
// another run changed the ledger in the meantime. Scripts run immediately,
// since Redis has no way of rolling back their effects.
package redis

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Shoobx/migrant/backend"
	"github.com/Shoobx/migrant/migrate"
)

// DefaultKey is the key of the ledger list.
const DefaultKey = "migrant:ledger"

// ErrLedgerChanged is returned by Commit when the ledger was modified by
// another run after the handle was created.
var ErrLedgerChanged = errors.New("ledger was changed by another run")

// Database is a single Redis logical database.
type Database struct {
	URI  string
	opts *goredis.Options
}

var _ migrate.Database = (*Database)(nil)

func (d *Database) String() string {
	return fmt.Sprintf("redis://%s/%d", d.opts.Addr, d.opts.DB)
}

// Handle is the working session on a Database.
type Handle struct {
	client *goredis.Client
	base   []string
	ledger []string
	ops    []func(goredis.Pipeliner)
}

// Exec runs source as a Lua script. It allows file-based scripts to run
// against Redis.
func (h *Handle) Exec(ctx context.Context, source string) error {
	err := h.client.Eval(ctx, source, nil).Err()
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	return err
}

// Client returns the client of the handle, for scripts written in Go.
func (h *Handle) Client() *goredis.Client {
	return h.client
}

// Backend is a migrate.Backend for Redis.
type Backend struct {
	dbs            []*Database
	testDBs        []*Database
	key            string
	connectTimeout time.Duration
	logger         *slog.Logger
}

var _ migrate.Backend = (*Backend)(nil)

// Option is a function that allows configuring the Backend.
type Option func(*Backend)

// WithKey sets the key of the ledger list.
func WithKey(key string) Option {
	return func(b *Backend) {
		b.key = key
	}
}

// WithConnectTimeout bounds the time spent reaching each server.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(b *Backend) {
		b.connectTimeout = timeout
	}
}

// WithLogger sets the logger used by the Backend.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger.With("component", "redis")
	}
}

// New returns a Backend for the databases at uris, which are
// "redis://[user:pass@]host:port/db" URLs. Test runs use testURIs, or uris
// if there are none.
func New(uris, testURIs []string, opts ...Option) (*Backend, error) {
	b := &Backend{
		key:            DefaultKey,
		connectTimeout: 10 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	var err error
	if b.dbs, err = parse(uris); err != nil {
		return nil, err
	}
	if b.testDBs, err = parse(testURIs); err != nil {
		return nil, err
	}

	return b, nil
}

func parse(uris []string) ([]*Database, error) {
	dbs := make([]*Database, 0, len(uris))
	for _, uri := range uris {
		opts, err := goredis.ParseURL(uri)
		if err != nil {
			return nil, fmt.Errorf("invalid Redis URI: %w", err)
		}
		dbs = append(dbs, &Database{URI: uri, opts: opts})
	}
	return dbs, nil
}

// Factory creates a Backend from cfg. The "key" option sets the ledger key.
func Factory(cfg backend.Config, logger *slog.Logger) (migrate.Backend, error) {
	opts := []Option{WithKey(cfg.Option("key", DefaultKey)), WithLogger(logger)}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, WithConnectTimeout(cfg.ConnectTimeout))
	}
	return New(cfg.URIs, cfg.TestURIs, opts...)
}

func databases(dbs []*Database) iter.Seq2[migrate.Database, error] {
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
	return databases(b.dbs)
}

// TestConnections implements migrate.Backend. Without test URIs the
// regular databases are used.
func (b *Backend) TestConnections(_ context.Context) iter.Seq2[migrate.Database, error] {
	if len(b.testDBs) == 0 {
		return databases(b.dbs)
	}
	return databases(b.testDBs)
}

// Begin implements migrate.Backend. Servers that don't answer PING within
// the connect timeout are reported as unavailable.
func (b *Backend) Begin(ctx context.Context, db migrate.Database) (migrate.Handle, error) {
	d, ok := db.(*Database)
	if !ok {
		return nil, fmt.Errorf("unsupported database type %T", db)
	}

	opts := *d.opts
	opts.DialTimeout = b.connectTimeout
	client := goredis.NewClient(&opts)

	pingCtx, cancel := context.WithTimeout(ctx, b.connectTimeout)
	err := client.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", migrate.ErrDatabaseUnavailable, err)
	}

	ledger, err := client.LRange(ctx, b.key, 0, -1).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed reading ledger: %w", err)
	}

	return &Handle{client: client, base: ledger, ledger: slices.Clone(ledger)}, nil
}

func handle(h migrate.Handle) (*Handle, error) {
	rh, ok := h.(*Handle)
	if !ok {
		return nil, fmt.Errorf("unsupported handle type %T", h)
	}
	return rh, nil
}

// ListMigrations implements migrate.Backend. Queued changes are included.
func (b *Backend) ListMigrations(_ context.Context, h migrate.Handle) ([]string, error) {
	rh, err := handle(h)
	if err != nil {
		return nil, err
	}
	return slices.Clone(rh.ledger), nil
}

// PushMigration implements migrate.Backend.
func (b *Backend) PushMigration(ctx context.Context, h migrate.Handle, name string) error {
	rh, err := handle(h)
	if err != nil {
		return err
	}
	rh.ops = append(rh.ops, func(p goredis.Pipeliner) { p.RPush(ctx, b.key, name) })
	rh.ledger = append(rh.ledger, name)
	return nil
}

// PopMigration implements migrate.Backend. The first entry with the same
// canonical identifier as name is removed.
func (b *Backend) PopMigration(ctx context.Context, h migrate.Handle, name string) error {
	rh, err := handle(h)
	if err != nil {
		return err
	}
	id := migrate.CanonicalID(name)
	idx := slices.IndexFunc(rh.ledger, func(m string) bool {
		return migrate.CanonicalID(m) == id
	})
	if idx < 0 {
		return fmt.Errorf("migration %s isn't recorded", name)
	}
	entry := rh.ledger[idx]
	rh.ops = append(rh.ops, func(p goredis.Pipeliner) { p.LRem(ctx, b.key, 1, entry) })
	rh.ledger = slices.Delete(rh.ledger, idx, idx+1)
	return nil
}

// Commit implements migrate.Backend. The queued ledger changes are applied in
// a MULTI/EXEC transaction guarded by a WATCH on the ledger key.
func (b *Backend) Commit(ctx context.Context, h migrate.Handle) error {
	rh, err := handle(h)
	if err != nil {
		return err
	}
	if len(rh.ops) == 0 {
		return nil
	}

	err = rh.client.Watch(ctx, func(tx *goredis.Tx) error {
		current, lerr := tx.LRange(ctx, b.key, 0, -1).Result()
		if lerr != nil {
			return lerr
		}
		if !slices.Equal(current, rh.base) {
			return ErrLedgerChanged
		}
		_, lerr = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			for _, op := range rh.ops {
				op(p)
			}
			return nil
		})
		return lerr
	}, b.key)
	if errors.Is(err, goredis.TxFailedErr) {
		err = ErrLedgerChanged
	}
	if err != nil {
		return fmt.Errorf("failed writing ledger: %w", err)
	}
	rh.ops = nil

	return nil
}

// Abort implements migrate.Backend.
func (b *Backend) Abort(_ context.Context, h migrate.Handle) error {
	rh, err := handle(h)
	if err != nil {
		return err
	}
	rh.ops = nil
	return nil
}

// Cleanup implements migrate.Backend.
func (b *Backend) Cleanup(_ context.Context, h migrate.Handle) error {
	rh, err := handle(h)
	if err != nil {
		return err
	}
	return rh.client.Close()
}
