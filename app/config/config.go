package config

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"github.com/mandelsoft/vfs/pkg/vfs"
)

// ErrUnknownDatabase is returned when looking up a database group that isn't
// configured.
var ErrUnknownDatabase = errors.New("unknown database")

// Config represents the application configuration, backed by a filesystem for
// persistence.
type Config struct {
	// Databases maps a database group name to its settings.
	Databases map[string]*Database

	fs   vfs.FileSystem
	path string
}

// NewConfig creates a new Config instance with the specified filesystem
// and configuration file path.
func NewConfig(fs vfs.FileSystem, path string) *Config {
	return &Config{fs: fs, path: path, Databases: map[string]*Database{}}
}

// Load reads and parses the configuration file from the filesystem.
// If the file doesn't exist, it initializes with an empty configuration.
func (c *Config) Load() error {
	configJSON, err := vfs.ReadFile(c.fs, c.path)
	if err != nil && !vfs.IsErrNotExist(err) {
		return fmt.Errorf("failed reading configuration file: %w", err)
	}

	if len(configJSON) == 0 {
		configJSON = []byte("{}")
	}

	if err = json.Unmarshal(configJSON, c); err != nil {
		return fmt.Errorf("failed parsing configuration file: %w", err)
	}

	return nil
}

// Path returns the filesystem path where the configuration is stored.
func (c *Config) Path() string {
	return c.path
}

// Save writes the current configuration to the filesystem as JSON.
func (c *Config) Save() error {
	if err := c.fs.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed creating configuration directory: %w", err)
	}
	configJSON, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed serializing configuration data: %w", err)
	}
	if err = vfs.WriteFile(c.fs, c.path, configJSON, 0o644); err != nil {
		return fmt.Errorf("failed writing configuration file: %w", err)
	}

	return nil
}

// Database returns the settings of the database group name. Relative
// repository paths are resolved against the directory of the configuration
// file.
func (c *Config) Database(name string) (*Database, error) {
	db, ok := c.Databases[name]
	if !ok {
		return nil, fmt.Errorf("%w '%s'", ErrUnknownDatabase, name)
	}
	if !db.Backend.Valid || db.Backend.V == "" {
		return nil, fmt.Errorf("database '%s': backend is required", name)
	}
	if !db.Repository.Valid || db.Repository.V == "" {
		return nil, fmt.Errorf("database '%s': repository is required", name)
	}

	out := *db
	if !filepath.IsAbs(out.Repository.V) {
		out.Repository.V = filepath.Join(filepath.Dir(c.path), out.Repository.V)
	}

	return &out, nil
}

// DatabaseNames returns the configured database group names, sorted.
func (c *Config) DatabaseNames() []string {
	return slices.Sorted(maps.Keys(c.Databases))
}

// Database defines the settings of a group of databases sharing a script
// repository.
type Database struct {
	// Backend is the name of the registered backend managing the databases.
	Backend sql.Null[string] `json:"backend"`
	// Repository is the path of the script repository directory.
	Repository sql.Null[string] `json:"repository"`
	// URIs identifies the databases to migrate, in a backend-specific format.
	URIs []string `json:"uris"`
	// TestURIs identifies the databases used by the test command. If empty,
	// URIs are used.
	TestURIs []string `json:"test_uris"`
	// Workers is the number of databases migrated in parallel.
	Workers sql.Null[int] `json:"workers"`
	// ConnectTimeout bounds the time spent connecting to each database.
	// It serializes from/to time.Duration string values.
	ConnectTimeout sql.Null[time.Duration] `json:"connect_timeout"`
	// Options are passed verbatim to the backend.
	Options map[string]string `json:"options"`
}

type cfgWrapper struct {
	Databases map[string]dbCfgWrapper `json:"databases,omitempty"`
}

type dbCfgWrapper struct {
	Backend        string            `json:"backend,omitempty"`
	Repository     string            `json:"repository,omitempty"`
	URIs           []string          `json:"uris,omitempty"`
	TestURIs       []string          `json:"test_uris,omitempty"`
	Workers        int               `json:"workers,omitempty"`
	ConnectTimeout string            `json:"connect_timeout,omitempty"`
	Options        map[string]string `json:"options,omitempty"`
}

// MarshalJSON implements custom JSON marshaling to convert sql.Null values
// to their underlying types, omitting invalid/null fields from the output.
func (c Config) MarshalJSON() ([]byte, error) {
	w := cfgWrapper{Databases: make(map[string]dbCfgWrapper, len(c.Databases))}

	for name, db := range c.Databases {
		dw := dbCfgWrapper{
			URIs:     db.URIs,
			TestURIs: db.TestURIs,
			Options:  db.Options,
		}
		if db.Backend.Valid {
			dw.Backend = db.Backend.V
		}
		if db.Repository.Valid {
			dw.Repository = db.Repository.V
		}
		if db.Workers.Valid {
			dw.Workers = db.Workers.V
		}
		if db.ConnectTimeout.Valid {
			dw.ConnectTimeout = db.ConnectTimeout.V.String()
		}
		w.Databases[name] = dw
	}

	//nolint:wrapcheck // This is fine.
	return json.Marshal(w)
}

// UnmarshalJSON implements custom JSON unmarshaling to convert plain values
// into sql.Null types and parse duration strings into time.Duration values.
func (c *Config) UnmarshalJSON(data []byte) error {
	var w cfgWrapper
	if err := json.Unmarshal(data, &w); err != nil {
		//nolint:wrapcheck // This is fine.
		return err
	}

	c.Databases = make(map[string]*Database, len(w.Databases))
	for name, dw := range w.Databases {
		db := &Database{
			URIs:     dw.URIs,
			TestURIs: dw.TestURIs,
			Options:  dw.Options,
		}
		if dw.Backend != "" {
			db.Backend = sql.Null[string]{V: dw.Backend, Valid: true}
		}
		if dw.Repository != "" {
			db.Repository = sql.Null[string]{V: dw.Repository, Valid: true}
		}
		if dw.Workers != 0 {
			if dw.Workers < 0 {
				return fmt.Errorf("database '%s': invalid number of workers %d", name, dw.Workers)
			}
			db.Workers = sql.Null[int]{V: dw.Workers, Valid: true}
		}
		if dw.ConnectTimeout != "" {
			dur, err := time.ParseDuration(dw.ConnectTimeout)
			if err != nil {
				return fmt.Errorf("database '%s': failed parsing connect timeout: %w", name, err)
			}
			db.ConnectTimeout = sql.Null[time.Duration]{V: dur, Valid: true}
		}
		c.Databases[name] = db
	}

	return nil
}
