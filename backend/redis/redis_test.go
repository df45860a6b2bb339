package redis

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shoobx/migrant/backend"
	"github.com/Shoobx/migrant/migrate"
	"github.com/Shoobx/migrant/repository"
)

var discard = slog.New(slog.DiscardHandler)

func newTestBackend(t *testing.T) (*Backend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	b, err := New([]string{"redis://" + mr.Addr() + "/0"}, nil, WithLogger(discard))
	require.NoError(t, err)
	return b, mr
}

func TestLedger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b, mr := newTestBackend(t)
	_, err := mr.Push(DefaultKey, "INITIAL", "a_first")
	require.NoError(t, err)

	h, err := b.Begin(ctx, b.dbs[0])
	require.NoError(t, err)
	require.NoError(t, b.PushMigration(ctx, h, "b_second"))
	require.NoError(t, b.PopMigration(ctx, h, "a"))
	ledger, err := b.ListMigrations(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, []string{"INITIAL", "b_second"}, ledger)

	// Nothing is written before Commit.
	stored, err := mr.List(DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"INITIAL", "a_first"}, stored)

	require.NoError(t, b.Commit(ctx, h))
	require.NoError(t, b.Cleanup(ctx, h))

	stored, err = mr.List(DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"INITIAL", "b_second"}, stored)
}

func TestAbort(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b, mr := newTestBackend(t)
	_, err := mr.Push(DefaultKey, "INITIAL")
	require.NoError(t, err)

	h, err := b.Begin(ctx, b.dbs[0])
	require.NoError(t, err)
	require.NoError(t, b.PushMigration(ctx, h, "a_first"))
	assert.EqualError(t, b.PopMigration(ctx, h, "z"), "migration z isn't recorded")
	require.NoError(t, b.Abort(ctx, h))
	require.NoError(t, b.Cleanup(ctx, h))

	stored, err := mr.List(DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"INITIAL"}, stored)
}

func TestConcurrentCommit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b, mr := newTestBackend(t)
	_, err := mr.Push(DefaultKey, "INITIAL")
	require.NoError(t, err)

	h1, err := b.Begin(ctx, b.dbs[0])
	require.NoError(t, err)
	h2, err := b.Begin(ctx, b.dbs[0])
	require.NoError(t, err)

	require.NoError(t, b.PushMigration(ctx, h1, "a_first"))
	require.NoError(t, b.PushMigration(ctx, h2, "a_first"))
	require.NoError(t, b.Commit(ctx, h1))

	err = b.Commit(ctx, h2)
	assert.ErrorIs(t, err, ErrLedgerChanged)
	assert.EqualError(t, err, "failed writing ledger: ledger was changed by another run")

	require.NoError(t, b.Cleanup(ctx, h1))
	require.NoError(t, b.Cleanup(ctx, h2))

	stored, err := mr.List(DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"INITIAL", "a_first"}, stored)
}

func TestUnavailable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	b, err := New([]string{"redis://" + addr}, nil,
		WithLogger(discard), WithConnectTimeout(500*time.Millisecond))
	require.NoError(t, err)

	_, err = b.Begin(context.Background(), b.dbs[0])
	assert.ErrorIs(t, err, migrate.ErrDatabaseUnavailable)
}

func TestEngine(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b, mr := newTestBackend(t)
	_, err := mr.Push(DefaultKey, "INITIAL")
	require.NoError(t, err)

	lua := func(src string) migrate.HookFunc {
		return func(ctx context.Context, h migrate.Handle) error {
			return h.(repository.Execer).Exec(ctx, src)
		}
	}
	repo, err := repository.NewStatic(&migrate.Script{
		Name: "a_counter",
		Up:   lua(`redis.call("SET", "counter", "1")`),
		Down: lua(`redis.call("DEL", "counter")`),
	}, &migrate.Script{
		Name: "b_bump",
		Up:   lua(`return redis.call("INCR", "counter")`),
		Down: lua(`return redis.call("DECR", "counter")`),
	})
	require.NoError(t, err)

	e, err := migrate.New(ctx, b, repo, migrate.WithLogger(discard))
	require.NoError(t, err)

	report, err := e.Update(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, migrate.Migrated, report.Results[0].Outcome)

	val, err := mr.Get("counter")
	require.NoError(t, err)
	assert.Equal(t, "2", val)

	stored, err := mr.List(DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"INITIAL", "a_counter", "b_bump"}, stored)

	report, err = e.Update(ctx, "INITIAL")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Results[0].Actions)
	assert.False(t, mr.Exists("counter"))
}

func TestFactory(t *testing.T) {
	t.Parallel()

	b, err := Factory(backend.Config{
		URIs:           []string{"redis://localhost:6379/2"},
		TestURIs:       []string{"redis://localhost:6379/3"},
		ConnectTimeout: 2 * time.Second,
		Options:        map[string]string{"key": "app:ledger"},
	}, discard)
	require.NoError(t, err)

	rb := b.(*Backend)
	assert.Equal(t, "app:ledger", rb.key)
	assert.Equal(t, 2*time.Second, rb.connectTimeout)
	assert.Equal(t, "redis://localhost:6379/2", rb.dbs[0].String())
	assert.Equal(t, "redis://localhost:6379/3", rb.testDBs[0].String())

	_, err = Factory(backend.Config{URIs: []string{"http://nope"}}, discard)
	assert.ErrorContains(t, err, "invalid Redis URI")
}

func TestTestConnections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		uris     []string
		testURIs []string
		exp      []string
	}{
		{
			name:     "ok/test_uris",
			uris:     []string{"redis://localhost:6379/0"},
			testURIs: []string{"redis://localhost:6379/9"},
			exp:      []string{"redis://localhost:6379/9"},
		},
		{
			name: "ok/fallback",
			uris: []string{"redis://localhost:6379/0", "redis://localhost:6379/1"},
			exp:  []string{"redis://localhost:6379/0", "redis://localhost:6379/1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := New(tt.uris, tt.testURIs, WithLogger(discard))
			require.NoError(t, err)

			var names []string
			for db, err := range b.TestConnections(context.Background()) {
				require.NoError(t, err)
				names = append(names, db.String())
			}
			assert.Equal(t, tt.exp, names)
		})
	}
}
