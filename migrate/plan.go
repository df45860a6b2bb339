package migrate

import (
	"log/slog"
	"slices"
	"strings"
)

// Direction is the direction of an Action.
type Direction int

// Action directions.
const (
	Apply Direction = iota
	Revert
)

func (d Direction) String() string {
	if d == Revert {
		return "-"
	}
	return "+"
}

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d == Revert {
		return Apply
	}
	return Revert
}

// Action applies or reverts a single script.
type Action struct {
	Direction Direction
	Revision  Revision
}

func (a Action) String() string {
	return "(" + a.Direction.String() + "," + a.Revision.ID() + ")"
}

// Plan is an ordered list of actions.
type Plan []Action

// Revert returns the inverse of p: every direction flipped, in reverse
// order. Executing p followed by p.Revert() restores the ledger.
func (p Plan) Revert() Plan {
	out := make(Plan, len(p))
	for i, a := range p {
		out[len(p)-1-i] = Action{Direction: a.Direction.Flip(), Revision: a.Revision}
	}
	return out
}

func (p Plan) String() string {
	parts := make([]string, len(p))
	for i, a := range p {
		parts[i] = a.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Planner computes the plans that reconcile a database ledger with the
// script sequence.
type Planner struct {
	index  *Index
	logger *slog.Logger
}

// NewPlanner returns a Planner over index.
func NewPlanner(index *Index, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{index: index, logger: logger}
}

// Calc returns the actions needed to bring a database whose ledger reports
// applied to target. target must be a member of the index.
//
// The apply window starts after the earliest applied revision still known to
// the index, not the latest one, so scripts missing from the middle of the
// history are applied while later ones that are present are left alone.
// Reverts always precede applies.
//
// Calc panics if applied is empty, since databases with an empty ledger are
// stamped instead of planned.
func (p *Planner) Calc(applied []string, target Revision) Plan {
	if len(applied) == 0 {
		panic("migration plan requested for a database with an empty ledger")
	}
	targetPos, ok := p.index.Position(target)
	if !ok {
		panic("migration plan requested for unknown target " + target.ID())
	}

	known := make([]Revision, 0, len(applied))
	seen := make(map[Revision]struct{}, len(applied))
	for _, name := range applied {
		rev := ParseRevision(name)
		if !p.index.Contains(rev) {
			p.logger.Warn("ignoring applied migration unknown to the repository", "migration", name)
			continue
		}
		if _, dup := seen[rev]; dup {
			continue
		}
		seen[rev] = struct{}{}
		known = append(known, rev)
	}
	slices.SortFunc(known, func(a, b Revision) int {
		pa, _ := p.index.Position(a)
		pb, _ := p.index.Position(b)
		return pa - pb
	})

	base := Initial
	if len(known) == 0 {
		p.logger.Warn("no common revision between repository and database; running all migrations",
			"target", target.ID())
	} else {
		base = known[0]
	}
	basePos, _ := p.index.Position(base)

	plan := Plan{}
	for i := len(known) - 1; i >= 0; i-- {
		if pos, _ := p.index.Position(known[i]); pos > targetPos {
			plan = append(plan, Action{Direction: Revert, Revision: known[i]})
		}
	}
	for pos := basePos + 1; pos <= targetPos; pos++ {
		rev := p.index.revs[pos]
		if _, ok := seen[rev]; ok {
			continue
		}
		plan = append(plan, Action{Direction: Apply, Revision: rev})
	}

	return plan
}
