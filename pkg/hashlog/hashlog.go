// Package hashlog stores cross-check runs in SQLite so that runs produced by
// different implementations (or different builds) can be compared entry by
// entry after the fact.
package hashlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jlrickert/xcheck/pkg/internal"
	"github.com/jlrickert/xcheck/pkg/xcheck"
)

var (
	// ErrRunNotFound indicates the requested run is not in the log.
	ErrRunNotFound = errors.New("hashlog: run not found")

	// ErrRunExists indicates a run name is already taken.
	ErrRunExists = errors.New("hashlog: run already exists")
)

// Run is one recorded top-level hash.
type Run struct {
	Name      string    `cbor:"name"`
	Type      string    `cbor:"type"`
	Hash      uint64    `cbor:"hash"`
	AHasher   string    `cbor:"ahasher"`
	SHasher   string    `cbor:"shasher"`
	Depth     int       `cbor:"depth"`
	CreatedAt time.Time `cbor:"created_at"`
}

// Entry is one tagged contribution observed while computing a run's hash.
// Seq numbers entries from 1 in hashing order.
type Entry struct {
	Seq   int    `cbor:"seq" json:"seq"`
	Path  string `cbor:"path" json:"path"`
	Tag   string `cbor:"tag" json:"tag"`
	Kind  string `cbor:"kind" json:"kind"`
	Value uint64 `cbor:"value" json:"value"`
}

var schemaSQL = []string{
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
	`CREATE TABLE IF NOT EXISTS runs (
	name       TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	hash       INTEGER NOT NULL,
	ahasher    TEXT NOT NULL,
	shasher    TEXT NOT NULL,
	depth      INTEGER NOT NULL,
	created_at TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS entries (
	run   TEXT NOT NULL REFERENCES runs(name) ON DELETE CASCADE,
	seq   INTEGER NOT NULL,
	path  TEXT NOT NULL,
	tag   TEXT NOT NULL,
	kind  TEXT NOT NULL,
	value INTEGER NOT NULL,
	PRIMARY KEY (run, seq)
)`,
}

// Store is a hash log backed by one SQLite database file.
type Store struct {
	db    *sql.DB
	path  string
	clock internal.Clock
	lg    *slog.Logger
	mu    sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp new runs.
func WithClock(c internal.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the store's logger.
func WithLogger(lg *slog.Logger) Option {
	return func(s *Store) { s.lg = lg }
}

// Open opens (creating if needed) the hash log at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, clock: internal.RealClock{}}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	if s.lg == nil {
		s.lg = slog.New(slog.DiscardHandler)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating hash log dir %q: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening hash log: %w", err)
	}
	// One connection keeps pragmas in effect for every statement.
	db.SetMaxOpenConns(1)

	for _, stmt := range schemaSQL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initializing hash log: %w", err)
		}
	}
	s.db = db
	s.lg.Debug("opened hash log", "path", path)
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores run and its entries atomically. A zero CreatedAt is set from
// the store's clock. The stored run is returned.
func (s *Store) Record(ctx context.Context, run Run, entries []Entry) (Run, error) {
	if run.Name == "" {
		return Run{}, fmt.Errorf("record run: name is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.clock.Now()
	}
	run.CreatedAt = run.CreatedAt.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("record run %q: %w", run.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM runs WHERE name = ?", run.Name).Scan(&exists)
	switch {
	case err == nil:
		return Run{}, fmt.Errorf("record run %q: %w", run.Name, ErrRunExists)
	case !errors.Is(err, sql.ErrNoRows):
		return Run{}, fmt.Errorf("record run %q: %w", run.Name, err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO runs (name, type, hash, ahasher, shasher, depth, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		run.Name, run.Type, int64(run.Hash), run.AHasher, run.SHasher, run.Depth,
		internal.FormatTimestamp(run.CreatedAt),
	)
	if err != nil {
		return Run{}, fmt.Errorf("record run %q: %w", run.Name, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO entries (run, seq, path, tag, kind, value) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return Run{}, fmt.Errorf("record run %q: %w", run.Name, err)
	}
	defer func() { _ = stmt.Close() }()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, run.Name, e.Seq, e.Path, e.Tag, e.Kind, int64(e.Value)); err != nil {
			return Run{}, fmt.Errorf("record run %q entry %d: %w", run.Name, e.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("record run %q: %w", run.Name, err)
	}
	s.lg.Info("recorded run", "run", run.Name, "type", run.Type, "entries", len(entries))
	return run, nil
}

// Run returns the named run.
func (s *Store) Run(ctx context.Context, name string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT name, type, hash, ahasher, shasher, depth, created_at FROM runs WHERE name = ?", name)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %q", ErrRunNotFound, name)
	}
	if err != nil {
		return Run{}, fmt.Errorf("load run %q: %w", name, err)
	}
	return run, nil
}

// Runs lists all runs, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, type, hash, ahasher, shasher, depth, created_at FROM runs ORDER BY created_at, name")
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Entries returns the entries of the named run in sequence order.
func (s *Store) Entries(ctx context.Context, name string) ([]Entry, error) {
	if _, err := s.Run(ctx, name); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, path, tag, kind, value FROM entries WHERE run = ? ORDER BY seq", name)
	if err != nil {
		return nil, fmt.Errorf("load entries of %q: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e     Entry
			value int64
		)
		if err := rows.Scan(&e.Seq, &e.Path, &e.Tag, &e.Kind, &value); err != nil {
			return nil, fmt.Errorf("load entries of %q: %w", name, err)
		}
		e.Value = uint64(value)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load entries of %q: %w", name, err)
	}
	return entries, nil
}

// Delete removes the named run and its entries.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete run %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %q", ErrRunNotFound, name)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run     Run
		hash    int64
		created string
	)
	if err := sc.Scan(&run.Name, &run.Type, &hash, &run.AHasher, &run.SHasher, &run.Depth, &created); err != nil {
		return Run{}, err
	}
	run.Hash = uint64(hash)
	t, err := internal.ParseTimestamp(created)
	if err != nil {
		return Run{}, fmt.Errorf("bad timestamp %q: %w", created, err)
	}
	run.CreatedAt = t
	return run, nil
}

// Recorder collects engine observations into numbered entries. Its Observe
// method is an xcheck.Observer.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// Observe appends o as the next entry.
func (r *Recorder) Observe(o xcheck.Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{
		Seq:   len(r.entries) + 1,
		Path:  o.Path,
		Tag:   o.Tag,
		Kind:  o.Kind.String(),
		Value: o.Value,
	})
}

// Entries returns a copy of the entries collected so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Reset drops the collected entries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}
