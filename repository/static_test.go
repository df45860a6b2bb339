package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shoobx/migrant/migrate"
)

func TestStatic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, err := NewStatic(
		&migrate.Script{Name: "a_first"},
		&migrate.Script{Name: "b_second"},
	)
	require.NoError(t, err)

	ids, err := repo.ScriptIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	script, err := repo.LoadScript(ctx, "b_whatever")
	require.NoError(t, err)
	assert.Equal(t, "b_second", script.Name)

	script.Name = "changed"
	script, err = repo.LoadScript(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "b_second", script.Name)

	_, err = repo.LoadScript(ctx, "c")
	assert.ErrorIs(t, err, migrate.ErrScriptNotFound)
}

func TestStaticErrors(t *testing.T) {
	t.Parallel()

	_, err := NewStatic(&migrate.Script{Name: "a_first"}, &migrate.Script{Name: "a_again"})
	assert.ErrorIs(t, err, ErrScriptExists)

	_, err = NewStatic(&migrate.Script{})
	assert.EqualError(t, err, "script name is required")
}
