package migrate

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownRevision is returned when a requested revision isn't part of
	// the script sequence.
	ErrUnknownRevision = errors.New("unknown revision")
	// ErrDatabaseUnavailable must be wrapped by Backend.Begin when a database
	// can't currently be reached. Such databases are skipped.
	ErrDatabaseUnavailable = errors.New("database unavailable")
	// ErrScriptFailed matches every error raised by a script hook.
	ErrScriptFailed = errors.New("script execution failed")
	// ErrScriptNotFound is returned by repositories for missing scripts.
	ErrScriptNotFound = errors.New("script not found")
	// ErrConfiguration matches setup problems detected before any work starts.
	ErrConfiguration = errors.New("configuration error")
)

// UnknownRevisionError is returned when resolving a revision that isn't in
// the Index.
type UnknownRevisionError struct {
	Revision string
}

// Error returns a string representation of the error.
func (e *UnknownRevisionError) Error() string {
	return fmt.Sprintf("unknown revision '%s'", e.Revision)
}

// Is allows matching against ErrUnknownRevision.
func (e *UnknownRevisionError) Is(target error) bool {
	return target == ErrUnknownRevision
}

// ScriptNotFoundError is returned when a repository has no script with ID.
type ScriptNotFoundError struct {
	ID string
}

// Error returns a string representation of the error.
func (e *ScriptNotFoundError) Error() string {
	return fmt.Sprintf("script '%s' not found", e.ID)
}

// Is allows matching against ErrScriptNotFound.
func (e *ScriptNotFoundError) Is(target error) bool {
	return target == ErrScriptNotFound
}

// ScriptError wraps a failure raised by one of a script's hooks.
type ScriptError struct {
	Script string
	Hook   Hook
	Err    error
}

// Error returns a string representation of the error.
func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %s failed in %s: %s", e.Script, e.Hook, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScriptError) Unwrap() error {
	return e.Err
}

// Is allows matching against ErrScriptFailed.
func (e *ScriptError) Is(target error) bool {
	return target == ErrScriptFailed
}

// ConfigError is returned for problems that prevent a run from starting,
// such as a malformed script sequence.
type ConfigError struct {
	Msg string
	Err error
}

// Error returns a string representation of the error.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Msg, e.Err)
	}
	return e.Msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is allows matching against ErrConfiguration.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// DatabaseError reports the failure of a single database within a run.
type DatabaseError struct {
	Database string
	Err      error
}

// Error returns a string representation of the error.
func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database %s: %s", e.Database, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *DatabaseError) Unwrap() error {
	return e.Err
}
