// Package backend maps backend names to the factories that create them.
package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/Shoobx/migrant/migrate"
)

// ErrUnknownBackend is returned when creating a backend that isn't registered.
var ErrUnknownBackend = errors.New("unknown backend")

// Config is the backend-independent part of a database group configuration.
type Config struct {
	// URIs of the databases to migrate.
	URIs []string
	// TestURIs of the databases used by test runs. Backends fall back to URIs
	// when empty.
	TestURIs []string
	// ConnectTimeout bounds the time spent reaching a database. Databases
	// that can't be reached in time are skipped.
	ConnectTimeout time.Duration
	// Options are backend specific settings.
	Options map[string]string
}

// Option returns the value of the backend option key, or def.
func (c Config) Option(key, def string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// BoolOption returns the value of the backend option key parsed as a bool,
// or def.
func (c Config) BoolOption(key string, def bool) (bool, error) {
	v, ok := c.Options[key]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid value for option '%s': %w", key, err)
	}
	return b, nil
}

// Factory creates a Backend from its configuration.
type Factory func(cfg Config, logger *slog.Logger) (migrate.Backend, error)

// Registry is a set of named backend factories.
type Registry struct {
	mx        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds factory under name.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("backend name is required")
	}
	if factory == nil {
		return fmt.Errorf("backend '%s': factory is required", name)
	}

	r.mx.Lock()
	defer r.mx.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("backend '%s' is already registered", name)
	}
	r.factories[name] = factory

	return nil
}

// New creates the backend registered under name.
func (r *Registry) New(name string, cfg Config, logger *slog.Logger) (migrate.Backend, error) {
	r.mx.RLock()
	factory, ok := r.factories[name]
	r.mx.RUnlock()
	if !ok {
		return nil, &migrate.ConfigError{
			Msg: fmt.Sprintf("backend '%s'", name), Err: ErrUnknownBackend,
		}
	}

	if logger == nil {
		logger = slog.Default()
	}
	b, err := factory(cfg, logger.With("backend", name))
	if err != nil {
		return nil, &migrate.ConfigError{
			Msg: fmt.Sprintf("failed creating backend '%s'", name), Err: err,
		}
	}

	return b, nil
}

// Names returns the registered backend names in lexical order.
func (r *Registry) Names() []string {
	r.mx.RLock()
	defer r.mx.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
