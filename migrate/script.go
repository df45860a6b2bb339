package migrate

import (
	"context"
	"fmt"
)

// HookFunc is one operation of a Script, run against a database handle.
type HookFunc func(ctx context.Context, h Handle) error

// Hook names a Script operation.
type Hook string

// All script hooks.
const (
	HookUp             Hook = "up"
	HookDown           Hook = "down"
	HookTestBeforeUp   Hook = "test_before_up"
	HookTestAfterUp    Hook = "test_after_up"
	HookTestBeforeDown Hook = "test_before_down"
	HookTestAfterDown  Hook = "test_after_down"
)

// Hooks lists every hook in file order.
var Hooks = []Hook{
	HookUp, HookDown,
	HookTestBeforeUp, HookTestAfterUp,
	HookTestBeforeDown, HookTestAfterDown,
}

// Script is a single migration. Name is the full identifier, including any
// descriptive suffix, and is what gets recorded in the ledger. Any nil hook
// is a no-op.
//
// Scripts are loaded on demand and used once, so a repository may build
// them with side effects.
type Script struct {
	Name string

	Up             HookFunc
	Down           HookFunc
	TestBeforeUp   HookFunc
	TestAfterUp    HookFunc
	TestBeforeDown HookFunc
	TestAfterDown  HookFunc
}

// ID returns the canonical identifier of the script.
func (s *Script) ID() string {
	return CanonicalID(s.Name)
}

// Hook returns the function registered for hook, or nil.
func (s *Script) Hook(hook Hook) HookFunc {
	switch hook {
	case HookUp:
		return s.Up
	case HookDown:
		return s.Down
	case HookTestBeforeUp:
		return s.TestBeforeUp
	case HookTestAfterUp:
		return s.TestAfterUp
	case HookTestBeforeDown:
		return s.TestBeforeDown
	case HookTestAfterDown:
		return s.TestAfterDown
	}
	return nil
}

// SetHook registers fn for hook.
func (s *Script) SetHook(hook Hook, fn HookFunc) {
	switch hook {
	case HookUp:
		s.Up = fn
	case HookDown:
		s.Down = fn
	case HookTestBeforeUp:
		s.TestBeforeUp = fn
	case HookTestAfterUp:
		s.TestAfterUp = fn
	case HookTestBeforeDown:
		s.TestBeforeDown = fn
	case HookTestAfterDown:
		s.TestAfterDown = fn
	default:
		panic(fmt.Sprintf("unknown script hook '%s'", hook))
	}
}

// Run executes hook against h. Errors and panics are returned as
// *ScriptError.
func (s *Script) Run(ctx context.Context, hook Hook, h Handle) (err error) {
	fn := s.Hook(hook)
	if fn == nil {
		return nil
	}

	defer func() {
		if p := recover(); p != nil {
			switch p := p.(type) {
			case error:
				err = &ScriptError{Script: s.Name, Hook: hook, Err: p}
			default:
				err = &ScriptError{Script: s.Name, Hook: hook, Err: fmt.Errorf("%v", p)}
			}
		}
	}()

	if ferr := fn(ctx, h); ferr != nil {
		return &ScriptError{Script: s.Name, Hook: hook, Err: ferr}
	}

	return nil
}
