// Package sqlite is the default durable store: one SQLite file holding a
// JSON row per entity bucket, plus the database file operations (export,
// save-as) the CLI exposes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"brewcore/internal/infra/persistence/memory"
	"brewcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "brewcore.db"

// Store keeps the working state in memory and writes each changed bucket
// as a JSON row of brewcore_state before a transaction's state is swapped
// in. A failed write leaves both the file and memory at the prior state.
type Store struct {
	*memory.Store
	db      *sql.DB
	mu      sync.Mutex
	path    string
	written memory.BucketTracker
}

// NewStore opens or creates the database at path (DefaultPath when empty)
// and hydrates the memory store from it.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.SetCommitHook(s.persist)
	return s, nil
}

var pragmas = []string{
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = FULL",
}

const schema = `CREATE TABLE IF NOT EXISTS brewcore_state (
	bucket     TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at TEXT NOT NULL
)`

func openDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps pragmas and VACUUM INTO on the same handle.
	db.SetMaxOpenConns(1)
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return db, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM brewcore_state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	stored := make(map[string][]byte)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		stored[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	snapshot, found, err := memory.DecodeBuckets(stored)
	if err != nil {
		return err
	}
	if found {
		s.ImportState(snapshot)
	}
	s.written.Ack(stored, memory.Buckets)
	return nil
}

func (s *Store) persist(ctx context.Context, candidate memory.Snapshot) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	encoded, err := memory.EncodeBuckets(candidate)
	if err != nil {
		return err
	}
	changed := s.written.Changed(encoded)
	if len(changed) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	for _, bucket := range changed {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO brewcore_state(bucket, payload, updated_at) VALUES(?, ?, ?)
			 ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
			bucket, encoded[bucket], stamp); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.written.Ack(encoded, changed)
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// Path returns the current database path.
func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Exists reports whether the current database file is present on disk.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

// Export writes a consistent copy of the database to dest. The store keeps
// using its current path.
func (s *Store) Export(ctx context.Context, dest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vacuumInto(ctx, dest)
}

// SaveAs copies the database to dest and switches the store to the copy.
func (s *Store) SaveAs(ctx context.Context, dest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.vacuumInto(ctx, dest); err != nil {
		return err
	}
	db, err := openDB(dest)
	if err != nil {
		return err
	}
	old := s.db
	s.db, s.path = db, dest
	if err := old.Close(); err != nil {
		return fmt.Errorf("close previous database: %w", err)
	}
	return nil
}

func (s *Store) vacuumInto(ctx context.Context, dest string) error {
	if dest == "" {
		return domain.Invalidf("destination path is required")
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dest, err)
	}
	if cur, err := filepath.Abs(s.path); err == nil && cur == abs {
		return domain.Invalidf("destination %s is the current database", dest)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return fmt.Errorf("create dirs: %w", err)
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("replace %s: %w", dest, err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, abs); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
