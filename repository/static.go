package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shoobx/migrant/migrate"
)

// Static is a repository of scripts defined in Go code, in the order they
// were added.
type Static struct {
	scripts []*migrate.Script
	byID    map[string]*migrate.Script
}

var _ migrate.Repository = (*Static)(nil)

// NewStatic returns a repository containing scripts.
func NewStatic(scripts ...*migrate.Script) (*Static, error) {
	s := &Static{byID: make(map[string]*migrate.Script, len(scripts))}
	for _, script := range scripts {
		if err := s.Add(script); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add appends script to the sequence.
func (s *Static) Add(script *migrate.Script) error {
	id := script.ID()
	if id == "" || script.Name == "" {
		return errors.New("script name is required")
	}
	if _, ok := s.byID[id]; ok {
		return fmt.Errorf("script '%s': %w", id, ErrScriptExists)
	}
	s.byID[id] = script
	s.scripts = append(s.scripts, script)
	return nil
}

// ScriptIDs implements migrate.Repository.
func (s *Static) ScriptIDs(_ context.Context) ([]string, error) {
	ids := make([]string, len(s.scripts))
	for i, script := range s.scripts {
		ids[i] = script.ID()
	}
	return ids, nil
}

// LoadScript implements migrate.Repository. The returned Script is a copy,
// so callers can't alter the repository.
func (s *Static) LoadScript(_ context.Context, id string) (*migrate.Script, error) {
	script, ok := s.byID[migrate.CanonicalID(id)]
	if !ok {
		return nil, &migrate.ScriptNotFoundError{ID: id}
	}
	cp := *script
	return &cp, nil
}
