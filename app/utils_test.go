package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/require"

	"github.com/Shoobx/migrant/backend"
	"github.com/Shoobx/migrant/backend/memory"
	"github.com/Shoobx/migrant/migrate"
)

const testConfig = `{"databases": {
	"test":   {"backend": "test", "repository": "/repo"},
	"virgin": {"backend": "test", "repository": "/noscripts"},
	"newdb":  {"backend": "test", "repository": "repo"},
	"broken": {"backend": "nope", "repository": "/repo"},
	"failing": {"backend": "failing", "repository": "/repo"}
}}`

const configPath = "/etc/migrant/config.json"

// scripts of the /repo repository. Each section sets a value, so tests can
// tell which sections were executed.
var scripts = map[string]string{
	"aaaa_first.sql":  "-- migrant:up\nSET value a\n-- migrant:down\nDEL value\n",
	"bbbb_second.sql": "-- migrant:up\nSET value b\n-- migrant:down\nSET value a\n",
	"cccc_third.sql": "-- migrant:up\nSET value c\nSET hello world\n" +
		"-- migrant:down\nSET value b\nDEL hello\n" +
		"-- migrant:test_after_up\nGET hello\n",
}

type testApp struct {
	*App
	fs             vfs.FileSystem
	db0            *memory.DB
	backend        *memory.Backend
	stdout, stderr *safeBuffer
}

func newTestApp(t *testing.T, ledger ...string) *testApp {
	t.Helper()

	fs := memoryfs.New()
	require.NoError(t, fs.MkdirAll("/etc/migrant", 0o755))
	require.NoError(t, vfs.WriteFile(fs, configPath, []byte(testConfig), 0o644))

	require.NoError(t, fs.MkdirAll("/repo", 0o755))
	list := "# scripts\naaaa_first.sql\nbbbb_second.sql\ncccc_third.sql\n"
	require.NoError(t, vfs.WriteFile(fs, "/repo/scripts.lst", []byte(list), 0o644))
	for name, src := range scripts {
		require.NoError(t, vfs.WriteFile(fs, "/repo/"+name, []byte(src), 0o644))
	}
	require.NoError(t, fs.MkdirAll("/noscripts", 0o755))

	db0 := memory.NewDB("db0", ledger...)
	mb := memory.New([]*memory.DB{db0})
	reg := backend.NewRegistry()
	err := reg.Register("test", func(backend.Config, *slog.Logger) (migrate.Backend, error) {
		return mb, nil
	})
	require.NoError(t, err)
	err = reg.Register("failing", func(backend.Config, *slog.Logger) (migrate.Backend, error) {
		return failingBackend{mb}, nil
	})
	require.NoError(t, err)

	stdout, stderr := &safeBuffer{}, &safeBuffer{}
	app, err := New("migrant", configPath,
		WithContext(t.Context()),
		WithBackends(reg),
		WithFDs(stdout, stderr),
		WithFS(fs),
		WithLogger(false),
	)
	require.NoError(t, err)

	return &testApp{App: app, fs: fs, db0: db0, backend: mb, stdout: stdout, stderr: stderr}
}

func (ta *testApp) Run(args ...string) error {
	return ta.App.Run(args)
}

func (ta *testApp) readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := vfs.ReadFile(ta.fs, path)
	require.NoError(t, err)
	return string(data)
}

// safeBuffer is a thread-safe buffer.
type safeBuffer struct {
	mx  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (n int, err error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.String()
}

func (b *safeBuffer) Reset() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.buf.Reset()
}

// failingBackend fails every database after connecting to it.
type failingBackend struct {
	*memory.Backend
}

func (failingBackend) ListMigrations(context.Context, migrate.Handle) ([]string, error) {
	return nil, errors.New("ledger is corrupt")
}
