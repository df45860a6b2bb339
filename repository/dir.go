package repository

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // Only used to derive short script identifiers.
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/Shoobx/migrant/migrate"
)

// ScriptListName is the name of the file defining the script order.
const ScriptListName = "scripts.lst"

var (
	// ErrRepositoryNotFound is returned when the repository directory doesn't exist.
	ErrRepositoryNotFound = errors.New("repository not found")
	// ErrScriptExists is returned when creating a script that already exists.
	ErrScriptExists = errors.New("script already exists")
)

const scriptListHeader = `# Order of migration scripts. This file is maintained by migrant
#
`

const scriptTemplate = `-- %s
--
-- Each section below is executed by the backend against the database.
-- Empty sections are skipped.

-- migrant:up

-- migrant:down

-- migrant:test_before_up

-- migrant:test_after_up

-- migrant:test_before_down

-- migrant:test_after_down
`

// sectionPrefix starts the marker lines that split a script file into hooks.
const sectionPrefix = "-- migrant:"

// Execer is implemented by database handles able to run the source of a
// script section.
type Execer interface {
	Exec(ctx context.Context, source string) error
}

// Dir is a repository of script files stored in a directory. The order of
// the scripts is defined by the ScriptListName file, which lists one script
// file name per line.
type Dir struct {
	fs     vfs.FileSystem
	dir    string
	ext    string
	logger *slog.Logger
}

var _ migrate.Repository = (*Dir)(nil)

// Option is a function that allows configuring the Dir repository.
type Option func(*Dir)

// WithExtension sets the extension of script files. The default is ".sql".
func WithExtension(ext string) Option {
	return func(d *Dir) {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		d.ext = ext
	}
}

// WithLogger sets the logger used by the repository.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dir) {
		d.logger = logger.With("component", "repository")
	}
}

// NewDir returns a repository rooted at dir on fs.
func NewDir(fs vfs.FileSystem, dir string, opts ...Option) *Dir {
	d := &Dir{fs: fs, dir: dir, ext: ".sql", logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Path returns the repository directory.
func (d *Dir) Path() string {
	return d.dir
}

func (d *Dir) listPath() string {
	return filepath.Join(d.dir, ScriptListName)
}

// Init creates the repository directory and an empty script list. Existing
// files are left untouched.
func (d *Dir) Init() error {
	if _, err := d.fs.Stat(d.dir); vfs.IsErrNotExist(err) {
		d.logger.Info("creating migrations directory", "path", d.dir)
		if err = d.fs.MkdirAll(d.dir, 0o755); err != nil {
			return fmt.Errorf("failed creating repository directory: %w", err)
		}
	}

	if _, err := d.fs.Stat(d.listPath()); vfs.IsErrNotExist(err) {
		d.logger.Info("creating initial script list", "path", d.listPath())
		if err = vfs.WriteFile(d.fs, d.listPath(), []byte(scriptListHeader), 0o644); err != nil {
			return fmt.Errorf("failed writing script list: %w", err)
		}
	}

	return nil
}

func (d *Dir) check() error {
	fi, err := d.fs.Stat(d.dir)
	if err != nil {
		if vfs.IsErrNotExist(err) {
			return fmt.Errorf("%w: %s", ErrRepositoryNotFound, d.dir)
		}
		return fmt.Errorf("failed accessing repository: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrRepositoryNotFound, d.dir)
	}
	return nil
}

// NewScript creates an empty script from title, appends it to the script
// list and returns its name.
func (d *Dir) NewScript(title string) (string, error) {
	if err := d.check(); err != nil {
		return "", err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return "", errors.New("script title is required")
	}
	name := ScriptName(d.dir, title)
	fname := name + d.ext
	fpath := filepath.Join(d.dir, fname)

	if _, err := d.fs.Stat(fpath); err == nil {
		d.logger.Error("script is already registered", "file", fname)
		return "", fmt.Errorf("%w: %s", ErrScriptExists, fname)
	}

	if err := vfs.WriteFile(d.fs, fpath, fmt.Appendf(nil, scriptTemplate, title), 0o644); err != nil {
		return "", fmt.Errorf("failed writing script file: %w", err)
	}

	list, err := vfs.ReadFile(d.fs, d.listPath())
	if err != nil && !vfs.IsErrNotExist(err) {
		return "", fmt.Errorf("failed reading script list: %w", err)
	}
	if len(list) > 0 && !bytes.HasSuffix(list, []byte("\n")) {
		list = append(list, '\n')
	}
	list = append(list, fname+"\n"...)
	if err = vfs.WriteFile(d.fs, d.listPath(), list, 0o644); err != nil {
		return "", fmt.Errorf("failed writing script list: %w", err)
	}

	d.logger.Info("script created", "path", fpath)

	return name, nil
}

// ScriptName derives the name of a new script from its title: a short hash
// of the repository directory and title, followed by the title in snake
// case.
func ScriptName(dir, title string) string {
	sum := sha1.Sum([]byte(dir + title)) //nolint:gosec // See import.
	id := hex.EncodeToString(sum[:])[:6]

	slug := strings.Map(func(r rune) rune {
		if r == ' ' || strings.ContainsRune(punctuation, r) {
			return '_'
		}
		return r
	}, strings.ToLower(title))

	return id + "_" + slug
}

const punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// ScriptIDs implements migrate.Repository. Comments, blank lines and lines
// that aren't script file names are skipped, so leftovers such as merge
// conflict markers don't break the list.
func (d *Dir) ScriptIDs(_ context.Context) ([]string, error) {
	if err := d.check(); err != nil {
		return nil, err
	}

	data, err := vfs.ReadFile(d.fs, d.listPath())
	if err != nil {
		if vfs.IsErrNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed reading script list: %w", err)
	}

	ids := []string{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !d.isScriptFile(line) {
			d.logger.Warn("ignoring unrecognized script name", "line", line)
			continue
		}
		ids = append(ids, migrate.CanonicalID(line))
	}
	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed reading script list: %w", err)
	}

	return ids, nil
}

func (d *Dir) isScriptFile(fname string) bool {
	return strings.Contains(fname, "_") && strings.HasSuffix(fname, d.ext)
}

// LoadScript implements migrate.Repository. The file is read and parsed on
// every call.
func (d *Dir) LoadScript(_ context.Context, id string) (*migrate.Script, error) {
	if err := d.check(); err != nil {
		return nil, err
	}

	entries, err := vfs.ReadDir(d.fs, d.dir)
	if err != nil {
		return nil, fmt.Errorf("failed listing repository: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	prefix := migrate.CanonicalID(id) + "_"
	for _, fname := range names {
		if !strings.HasSuffix(fname, d.ext) || !strings.HasPrefix(fname, prefix) {
			continue
		}
		data, err := vfs.ReadFile(d.fs, filepath.Join(d.dir, fname))
		if err != nil {
			return nil, fmt.Errorf("failed reading script %s: %w", fname, err)
		}
		return ParseScript(strings.TrimSuffix(fname, d.ext), data)
	}

	return nil, &migrate.ScriptNotFoundError{ID: id}
}

// ParseScript builds a Script from the contents of a script file. Lines
// before the first section marker are ignored. Sections are executed through
// the Execer implemented by the database handle.
func ParseScript(name string, data []byte) (*migrate.Script, error) {
	script := &migrate.Script{Name: name}
	sections := map[migrate.Hook]*strings.Builder{}

	var cur *strings.Builder
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if marker, ok := strings.CutPrefix(strings.TrimSpace(line), sectionPrefix); ok {
			hook := migrate.Hook(strings.TrimSpace(marker))
			if !slices.Contains(migrate.Hooks, hook) {
				return nil, fmt.Errorf("script %s: unknown section '%s'", name, hook)
			}
			if _, dup := sections[hook]; dup {
				return nil, fmt.Errorf("script %s: duplicate section '%s'", name, hook)
			}
			cur = &strings.Builder{}
			sections[hook] = cur
			continue
		}
		if cur != nil {
			cur.WriteString(line)
			cur.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed parsing script %s: %w", name, err)
	}

	for hook, src := range sections {
		source := strings.TrimSpace(src.String())
		if source == "" {
			continue
		}
		script.SetHook(hook, execHook(source))
	}

	return script, nil
}

func execHook(source string) migrate.HookFunc {
	return func(ctx context.Context, h migrate.Handle) error {
		ex, ok := h.(Execer)
		if !ok {
			return fmt.Errorf("database handle %T can't execute scripts", h)
		}
		return ex.Exec(ctx, source)
	}
}
