package migrate_test

import (
	"bytes"
	"log/slog"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shoobx/migrant/migrate"
)

func newPlanner(t *testing.T, scripts []string) (*migrate.Planner, *bytes.Buffer) {
	t.Helper()
	ix, err := migrate.NewIndex(scripts)
	require.NoError(t, err)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return migrate.NewPlanner(ix, logger), &buf
}

func TestPlannerCalc(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		applied []string
		scripts []string
		target  string
		exp     string
	}{
		{
			name:    "ok/simple",
			applied: []string{"a", "b"}, scripts: []string{"a", "b", "c", "d"},
			target: "d", exp: "[(+,c) (+,d)]",
		},
		{
			name:    "ok/downgrade",
			applied: []string{"a", "b", "c"}, scripts: []string{"a", "b", "c", "d"},
			target: "a", exp: "[(-,c) (-,b)]",
		},
		{
			name:    "ok/out_of_order_upgrade",
			applied: []string{"a", "b", "d"}, scripts: []string{"a", "b", "c", "d"},
			target: "d", exp: "[(+,c)]",
		},
		{
			name:    "ok/out_of_order_downgrade",
			applied: []string{"a", "b", "d"}, scripts: []string{"a", "b", "c", "d"},
			target: "c", exp: "[(-,d) (+,c)]",
		},
		{
			name:    "ok/no_beginning",
			applied: []string{"b", "d"}, scripts: []string{"a", "b", "c", "d", "e"},
			target: "e", exp: "[(+,c) (+,e)]",
		},
		{
			name:    "ok/removed_scripts",
			applied: []string{"a", "b", "c", "d"}, scripts: []string{"c", "d", "e"},
			target: "e", exp: "[(+,e)]",
		},
		{
			name:    "ok/wrong_order",
			applied: []string{"d", "b", "a"}, scripts: []string{"b", "c", "d", "e"},
			target: "e", exp: "[(+,c) (+,e)]",
		},
		{
			name:    "ok/no_common",
			applied: []string{"a", "b", "c"}, scripts: []string{"d", "e"},
			target: "e", exp: "[(+,d) (+,e)]",
		},
		{
			name:    "ok/wrong_order_downgrade",
			applied: []string{"e", "d", "b", "a"}, scripts: []string{"b", "c", "d", "e"},
			target: "b", exp: "[(-,e) (-,d)]",
		},
		{
			name:    "ok/up_to_date",
			applied: []string{"INITIAL", "a_first", "b_second"}, scripts: []string{"a", "b"},
			target: "b", exp: "[]",
		},
		{
			name:    "ok/full_names_and_duplicates",
			applied: []string{"INITIAL", "a_first", "a_first", "b_second"}, scripts: []string{"a", "b", "c"},
			target: "c", exp: "[(+,c)]",
		},
		{
			name:    "ok/to_initial",
			applied: []string{"INITIAL", "a", "b"}, scripts: []string{"a", "b"},
			target: "INITIAL", exp: "[(-,b) (-,a)]",
		},
		{
			name:    "ok/stamped_only",
			applied: []string{"INITIAL"}, scripts: []string{"a", "b"},
			target: "b", exp: "[(+,a) (+,b)]",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p, _ := newPlanner(t, tc.scripts)
			plan := p.Calc(tc.applied, migrate.ParseRevision(tc.target))
			assert.Equal(t, tc.exp, plan.String())
		})
	}
}

func TestPlannerCalcLogs(t *testing.T) {
	t.Parallel()

	p, buf := newPlanner(t, []string{"d", "e"})
	p.Calc([]string{"a", "b"}, migrate.Named("e"))

	out := buf.String()
	assert.Contains(t, out, `level=WARN msg="ignoring applied migration unknown to the repository" migration=a`)
	assert.Contains(t, out, "migration=b")
	assert.Contains(t, out, `msg="no common revision between repository and database; running all migrations"`)
}

func TestPlannerCalcPanics(t *testing.T) {
	t.Parallel()

	p, _ := newPlanner(t, []string{"a"})
	assert.Panics(t, func() { p.Calc(nil, migrate.Named("a")) })
	assert.Panics(t, func() { p.Calc([]string{"a"}, migrate.Named("z")) })
}

// Properties that hold for any ledger and target.
func TestPlannerProperties(t *testing.T) {
	t.Parallel()

	scripts := []string{"a", "b", "c", "d", "e"}
	p, _ := newPlanner(t, scripts)
	ix, err := migrate.NewIndex(scripts)
	require.NoError(t, err)

	ledgers := [][]string{
		{"INITIAL"},
		{"INITIAL", "a"},
		{"INITIAL", "a", "b", "c", "d", "e"},
		{"INITIAL", "a", "c", "e"},
		{"INITIAL", "e_last", "b_second", "x"},
		{"e", "c", "x", "y"},
		{"b", "d"},
		{"zz"},
	}

	for _, applied := range ledgers {
		for _, target := range ix.Revisions() {
			plan := p.Calc(applied, target)
			targetPos, _ := ix.Position(target)

			assert.Equal(t, plan, p.Calc(applied, target))

			// Reverts precede applies, each in sequence order.
			seenApply := false
			lastRevert, lastApply := ix.Len(), -1
			for _, a := range plan {
				pos, ok := ix.Position(a.Revision)
				require.True(t, ok)
				switch a.Direction {
				case migrate.Revert:
					assert.False(t, seenApply, "revert after apply in %s", plan)
					assert.Greater(t, pos, targetPos)
					assert.Less(t, pos, lastRevert)
					lastRevert = pos
				case migrate.Apply:
					seenApply = true
					assert.LessOrEqual(t, pos, targetPos)
					assert.Greater(t, pos, lastApply)
					lastApply = pos
				}
			}

			if !slices.Contains(applied, migrate.InitialName) {
				continue
			}

			// On a stamped ledger, executing the plan leaves nothing to do,
			// and the reverted plan restores the known part of the ledger.
			after := apply(applied, plan)
			assert.Empty(t, p.Calc(after, target), "applied=%v target=%s", applied, target)
			restored := apply(after, plan.Revert())
			assert.ElementsMatch(t, known(ix, applied), known(ix, restored))
		}
	}
}

func TestPlanRevert(t *testing.T) {
	t.Parallel()

	plan := migrate.Plan{
		{Direction: migrate.Revert, Revision: migrate.Named("a")},
		{Direction: migrate.Apply, Revision: migrate.Named("b")},
	}
	assert.Equal(t, "[(-,b) (+,a)]", plan.Revert().String())
	assert.Equal(t, plan, plan.Revert().Revert())
	assert.Empty(t, migrate.Plan{}.Revert())
}

func apply(ledger []string, plan migrate.Plan) []string {
	out := slices.Clone(ledger)
	for _, a := range plan {
		if a.Direction == migrate.Apply {
			out = append(out, a.Revision.ID())
			continue
		}
		out = slices.DeleteFunc(out, func(m string) bool {
			return migrate.CanonicalID(m) == a.Revision.ID()
		})
	}
	return out
}

func known(ix *migrate.Index, ledger []string) []string {
	var out []string
	for _, m := range ledger {
		rev := migrate.ParseRevision(m)
		if ix.Contains(rev) && !rev.IsInitial() && !slices.Contains(out, rev.ID()) {
			out = append(out, rev.ID())
		}
	}
	return out
}
