package migrate_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Shoobx/migrant/backend/memory"
	"github.com/Shoobx/migrant/migrate"
	"github.com/Shoobx/migrant/repository"
)

// recorder logs every hook invocation as "<db> <script> <hook>".
type recorder struct {
	mx  sync.Mutex
	log []string
	// fail makes the hook with the given "<script> <hook>" key fail.
	fail map[string]error
}

func (r *recorder) Log() []string {
	r.mx.Lock()
	defer r.mx.Unlock()
	return slices.Clone(r.log)
}

func (r *recorder) hook(script, what string) migrate.HookFunc {
	return func(_ context.Context, h migrate.Handle) error {
		db := h.(*memory.Handle).DB.Name
		r.mx.Lock()
		defer r.mx.Unlock()
		if err := r.fail[script+" "+what]; err != nil {
			return err
		}
		r.log = append(r.log, fmt.Sprintf("%s %s %s", db, script, what))
		return nil
	}
}

func (r *recorder) script(name string) *migrate.Script {
	id := migrate.CanonicalID(name)
	return &migrate.Script{
		Name:           name,
		Up:             r.hook(id, "up"),
		Down:           r.hook(id, "down"),
		TestBeforeUp:   r.hook(id, "before up"),
		TestAfterUp:    r.hook(id, "after up"),
		TestBeforeDown: r.hook(id, "before down"),
		TestAfterDown:  r.hook(id, "after down"),
	}
}

func (r *recorder) repo(t *testing.T, names ...string) *repository.Static {
	t.Helper()
	scripts := make([]*migrate.Script, len(names))
	for i, name := range names {
		scripts[i] = r.script(name)
	}
	repo, err := repository.NewStatic(scripts...)
	require.NoError(t, err)
	return repo
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mx  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.String()
}

func newLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}
