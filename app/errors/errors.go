package errors

import (
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/Shoobx/migrant/migrate"
)

// Log writes err to logger. Metadata of a StructuredError is rendered as
// attributes, and every failed database of a migration run gets its own
// record.
func Log(logger *slog.Logger, err error) {
	var serr *StructuredError
	if !errors.As(err, &serr) {
		logSplit(logger, "", nil, err)
		return
	}

	args := make([]any, 0, len(serr.metadata)*2)
	for _, k := range slices.Sorted(maps.Keys(serr.metadata)) {
		args = append(args, k, serr.metadata[k])
	}

	if serr.cause == nil {
		logger.Error(serr.Message(), args...)
		return
	}
	logSplit(logger, serr.Message(), args, serr.cause)
}

func logSplit(logger *slog.Logger, msg string, args []any, err error) {
	dbErrs, others := split(err)
	for _, dbErr := range dbErrs {
		m := msg
		if m == "" {
			m = "migration failed"
		}
		logger.Error(m, append(slices.Clone(args), "database", dbErr.Database, "error", dbErr.Err)...)
	}
	for _, oerr := range others {
		if msg == "" {
			logger.Error(oerr.Error(), args...)
			continue
		}
		logger.Error(msg, append(slices.Clone(args), "error", oerr)...)
	}
}

// split separates the per-database failures joined in err from the rest.
func split(err error) (dbErrs []*migrate.DatabaseError, others []error) {
	switch e := err.(type) {
	case *migrate.DatabaseError:
		return []*migrate.DatabaseError{e}, nil
	case *StructuredError:
	case interface{ Unwrap() []error }:
		for _, ee := range e.Unwrap() {
			d, o := split(ee)
			dbErrs = append(dbErrs, d...)
			others = append(others, o...)
		}
		return dbErrs, others
	}
	return nil, []error{err}
}
