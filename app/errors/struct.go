package errors

import (
	"errors"
	"maps"
)

// StructuredError is an error with slog-friendly metadata and an optional
// cause.
type StructuredError struct {
	err      error
	metadata map[string]any
	cause    error
}

// Error implements the error interface.
func (e StructuredError) Error() string {
	if e.cause != nil {
		return e.err.Error() + ": " + e.cause.Error()
	}
	return e.err.Error()
}

// Unwrap allows errors.Is and errors.As to work.
func (e StructuredError) Unwrap() []error {
	errs := []error{e.err}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// Cause returns the cause error of this error.
func (e StructuredError) Cause() error {
	return e.cause
}

// Message returns the error message without the cause.
func (e StructuredError) Message() string {
	return e.err.Error()
}

// Metadata returns a copy of the metadata map.
func (e StructuredError) Metadata() map[string]any {
	if e.metadata == nil {
		return nil
	}
	return maps.Clone(e.metadata)
}

// New creates a StructuredError from a message with optional metadata, given
// as alternating keys and values.
func New(msg string, fields ...any) *StructuredError {
	return With(errors.New(msg), fields...)
}

// Wrap creates a StructuredError from a message with a cause and optional
// metadata.
func Wrap(msg string, cause error, fields ...any) *StructuredError {
	serr := With(errors.New(msg), fields...)
	serr.cause = cause
	return serr
}

// With adds metadata to an error. Metadata of an existing StructuredError is
// merged, with fields taking precedence.
func With(err error, fields ...any) *StructuredError {
	metadata := toMap(fields)

	if se, ok := err.(*StructuredError); ok {
		combined := se.Metadata()
		if combined == nil {
			combined = map[string]any{}
		}
		maps.Copy(combined, metadata)
		return &StructuredError{err: se.err, metadata: combined, cause: se.cause}
	}

	return &StructuredError{err: err, metadata: metadata}
}

func toMap(fields []any) map[string]any {
	if len(fields)%2 != 0 {
		panic("an even number of fields is required")
	}
	metadata := make(map[string]any, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			panic("keys must be strings")
		}
		metadata[key] = fields[i+1]
	}
	return metadata
}
