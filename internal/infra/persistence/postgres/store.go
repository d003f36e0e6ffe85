// Package postgres keeps the working state in memory and mirrors it into a
// brewcore_state table, one JSONB row per entity bucket.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver

	"brewcore/internal/infra/persistence/memory"
	"brewcore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultDSN is used when no DSN is configured.
const DefaultDSN = "postgres://localhost/brewcore?sslmode=disable"

const schema = `CREATE TABLE IF NOT EXISTS brewcore_state (
	bucket     TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsert = `INSERT INTO brewcore_state (bucket, payload) VALUES ($1, $2)
ON CONFLICT (bucket) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`

// Opener returns a database handle for a DSN. Tests swap it for a fake.
type Opener func(dsn string) (*sql.DB, error)

func openPgx(dsn string) (*sql.DB, error) { return sql.Open("pgx", dsn) }

// Store is a memory store whose commits are written through to Postgres
// before they become visible in memory.
type Store struct {
	*memory.Store
	db      *sql.DB
	mu      sync.Mutex
	written memory.BucketTracker
}

// NewStore connects with the pgx driver. An empty dsn selects DefaultDSN.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	return Open(context.Background(), dsn, engine, openPgx)
}

// Open validates dsn, connects through open, creates the state table and
// hydrates the memory store from it.
func Open(ctx context.Context, dsn string, engine *domain.RulesEngine, open Opener) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return nil, domain.Invalidf("postgres dsn: %v", err)
	}
	db, err := open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.SetCommitHook(s.persist)
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
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
	for _, bucket := range changed {
		if _, err := tx.ExecContext(ctx, upsert, bucket, encoded[bucket]); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.written.Ack(encoded, changed)
	return nil
}

// DB exposes the connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }
