package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"ghgcalc/internal/calc"
)

var ErrNotFound = errors.New("formula not found")

// DefaultLockTimeout bounds how long a library operation waits for the file lock.
const DefaultLockTimeout = 5 * time.Second

// Library is the formula definition store: a JSON array in one file, guarded
// by an exclusive lock on <file>.lock for every read-modify-write.
type Library struct {
	path        string
	lockTimeout time.Duration
	log         *slog.Logger
}

func NewLibrary(path string, lockTimeout time.Duration, logger *slog.Logger) *Library {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{path: path, lockTimeout: lockTimeout, log: logger}
}

func (l *Library) Path() string { return l.path }

// LoadAll returns every stored definition sorted by name.
func (l *Library) LoadAll(ctx context.Context) ([]calc.FormulaDefinition, error) {
	unlock, err := l.lock(ctx, false)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return l.read()
}

// Get returns the definition called name.
func (l *Library) Get(ctx context.Context, name string) (calc.FormulaDefinition, error) {
	defs, err := l.LoadAll(ctx)
	if err != nil {
		return calc.FormulaDefinition{}, err
	}
	for _, d := range defs {
		if d.Name == name {
			return d, nil
		}
	}
	return calc.FormulaDefinition{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Save stores def, replacing any definition with the same name.
func (l *Library) Save(ctx context.Context, def calc.FormulaDefinition) error {
	def.Name = strings.TrimSpace(def.Name)
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid formula: %w", err)
	}
	unlock, err := l.lock(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	defs, err := l.read()
	if err != nil {
		return err
	}
	if def.SumBlocks == nil {
		def.SumBlocks = []calc.SumBlock{}
	}
	idx := slices.IndexFunc(defs, func(d calc.FormulaDefinition) bool { return d.Name == def.Name })
	if idx >= 0 {
		defs[idx] = def
	} else {
		defs = append(defs, def)
	}
	if err := l.write(defs); err != nil {
		return err
	}
	l.log.Debug("Formula saved.", "name", def.Name, "replaced", idx >= 0, "path", l.path)
	return nil
}

// Delete removes the definition called name.
func (l *Library) Delete(ctx context.Context, name string) error {
	unlock, err := l.lock(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	defs, err := l.read()
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(defs, func(d calc.FormulaDefinition) bool { return d.Name == name })
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	defs = slices.Delete(defs, idx, idx+1)
	if err := l.write(defs); err != nil {
		return err
	}
	l.log.Debug("Formula deleted.", "name", name, "path", l.path)
	return nil
}

// lock takes the library lock and returns its release func.
func (l *Library) lock(ctx context.Context, exclusive bool) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("creating library directory: %w", err)
	}
	fl := flock.New(l.path + ".lock")
	ctx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()

	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = fl.TryLockContext(ctx, 50*time.Millisecond)
	} else {
		locked, err = fl.TryRLockContext(ctx, 50*time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("acquiring library lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("timeout waiting for library lock %s", fl.Path())
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			l.log.Warn("Releasing library lock failed.", "path", fl.Path(), "error", err)
		}
	}, nil
}

func (l *Library) read() ([]calc.FormulaDefinition, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []calc.FormulaDefinition{}, nil
		}
		return nil, fmt.Errorf("reading library: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []calc.FormulaDefinition{}, nil
	}
	var defs []calc.FormulaDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parsing library %s: %w", l.path, err)
	}
	for i := range defs {
		if defs[i].SumBlocks == nil {
			defs[i].SumBlocks = []calc.SumBlock{}
		}
	}
	slices.SortFunc(defs, byName)
	return defs, nil
}

// write replaces the library file through a temp file and rename.
func (l *Library) write(defs []calc.FormulaDefinition) error {
	slices.SortFunc(defs, byName)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(defs); err != nil {
		return fmt.Errorf("encoding library: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing library: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing library: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing library: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("replacing library: %w", err)
	}
	return nil
}

func byName(a, b calc.FormulaDefinition) int { return strings.Compare(a.Name, b.Name) }
