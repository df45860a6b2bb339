package migrate

import (
	"errors"
	"time"
)

// Outcome is the terminal state of a database within a run.
type Outcome int

// Database outcomes.
const (
	// Skipped databases couldn't be reached.
	Skipped Outcome = iota
	// Uninitialized databases have an empty ledger. Only reported by status
	// runs, which never stamp.
	Uninitialized
	// Initialized databases had an empty ledger and were stamped.
	Initialized
	// UpToDate databases needed no action.
	UpToDate
	// Pending databases need actions. Only reported by status runs.
	Pending
	// Migrated databases had their plan executed and committed.
	Migrated
	// Tested databases passed the round-trip test.
	Tested
	// Failed databases were aborted.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case UpToDate:
		return "up-to-date"
	case Pending:
		return "pending"
	case Migrated:
		return "migrated"
	case Tested:
		return "tested"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Result is the outcome of processing one database.
type Result struct {
	Database string
	Outcome  Outcome
	// Actions is the length of the computed plan.
	Actions  int
	Err      error
	Duration time.Duration
}

// Report collects the results of a run, in completion order.
type Report struct {
	RunID   string
	Target  Revision
	Results []Result
}

// Pending returns the total number of actions across all databases.
func (r *Report) Pending() int {
	total := 0
	for _, res := range r.Results {
		total += res.Actions
	}
	return total
}

// Count returns the number of databases with outcome o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Failed returns the results of the databases that failed.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Outcome == Failed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err joins the errors of every failed database, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, &DatabaseError{Database: res.Database, Err: res.Err})
	}
	return errors.Join(errs...)
}
