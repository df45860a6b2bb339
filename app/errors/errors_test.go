package errors

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Shoobx/migrant/migrate"
)

func TestStructuredError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := Wrap("failed running upgrade", cause, "revision", "abc")
	err = With(err, "database", "acme", "revision", "def")

	assert.EqualError(t, err, "failed running upgrade: connection refused")
	assert.Equal(t, "failed running upgrade", err.Message())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, err.Cause())
	assert.Equal(t, map[string]any{"database": "acme", "revision": "def"}, err.Metadata())

	assert.EqualError(t, New("no cause"), "no cause")
	assert.Nil(t, (&StructuredError{err: errors.New("x")}).Metadata())
	assert.Panics(t, func() { New("odd", "key") })
	assert.Panics(t, func() { New("bad key", 1, 2) })
}

func TestLog(t *testing.T) {
	t.Parallel()

	runErr := errors.Join(
		&migrate.DatabaseError{Database: "db1", Err: errors.New("boom")},
		&migrate.DatabaseError{Database: "db2", Err: errors.New("bang")},
	)

	tests := []struct {
		name   string
		err    error
		expOut string
	}{
		{
			name:   "ok/plain",
			err:    errors.New("oops"),
			expOut: "level=ERROR msg=oops\n",
		},
		{
			name:   "ok/structured",
			err:    New("invalid input", "z", 1, "a", "x"),
			expOut: "level=ERROR msg=\"invalid input\" a=x z=1\n",
		},
		{
			name: "ok/cause",
			err:  Wrap("failed loading config", errors.New("no such file"), "config_file", "/c.json"),
			expOut: "level=ERROR msg=\"failed loading config\" config_file=/c.json " +
				"error=\"no such file\"\n",
		},
		{
			name: "ok/databases",
			err:  Wrap("failed running upgrade", runErr, "revision", "abc"),
			expOut: "level=ERROR msg=\"failed running upgrade\" revision=abc database=db1 error=boom\n" +
				"level=ERROR msg=\"failed running upgrade\" revision=abc database=db2 error=bang\n",
		},
		{
			name: "ok/joined",
			err:  errors.Join(runErr, errors.New("listing failed")),
			expOut: "level=ERROR msg=\"migration failed\" database=db1 error=boom\n" +
				"level=ERROR msg=\"migration failed\" database=db2 error=bang\n" +
				"level=ERROR msg=\"listing failed\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}))
			Log(logger, tt.err)
			assert.Equal(t, tt.expOut, buf.String())
		})
	}
}
