// Package pgfake is a database/sql driver that understands the handful of
// statements the postgres store issues against brewcore_state. It lets the
// store be tested without a server.
package pgfake

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var seq atomic.Uint64

// Server holds the rows of brewcore_state and the statements it saw.
type Server struct {
	mu       sync.Mutex
	rows     map[string][]byte
	pending  map[string][]byte
	inTx     bool
	Executed []string

	FailPing   bool
	FailBegin  bool
	FailCommit bool
	FailUpsert string // bucket whose upsert errors
	FailQuery  bool
}

// Open registers a fresh driver and returns a handle to it.
func Open() (*sql.DB, *Server) {
	srv := &Server{rows: make(map[string][]byte)}
	name := fmt.Sprintf("pgfake-%d", seq.Add(1))
	sql.Register(name, connector{srv})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	return db, srv
}

// Row returns the stored payload for bucket.
func (s *Server) Row(bucket string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[bucket]
	return p, ok
}

// Buckets lists stored buckets in name order.
func (s *Server) Buckets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rows))
	for b := range s.rows {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Upserts counts executed INSERT statements.
func (s *Server) Upserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, q := range s.Executed {
		if strings.HasPrefix(q, "INSERT") {
			n++
		}
	}
	return n
}

type connector struct{ srv *Server }

func (c connector) Open(string) (driver.Conn, error) { return &conn{srv: c.srv}, nil }

type conn struct{ srv *Server }

func (c *conn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("pgfake: prepared statements are not supported")
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) Ping(context.Context) error {
	if c.srv.FailPing {
		return errors.New("pgfake: connection refused")
	}
	return nil
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailBegin {
		return nil, errors.New("pgfake: begin refused")
	}
	s.inTx, s.pending = true, make(map[string][]byte)
	return tx{s}, nil
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	query = strings.TrimSpace(query)
	s.Executed = append(s.Executed, query)
	switch {
	case strings.HasPrefix(query, "CREATE TABLE"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(query, "INSERT INTO brewcore_state"):
		if len(args) < 2 {
			return nil, fmt.Errorf("pgfake: upsert wants bucket and payload, got %d args", len(args))
		}
		bucket, _ := args[0].Value.(string)
		payload, _ := args[1].Value.([]byte)
		if bucket == s.FailUpsert {
			return nil, fmt.Errorf("pgfake: upsert %s refused", bucket)
		}
		if s.inTx {
			s.pending[bucket] = payload
		} else {
			s.rows[bucket] = payload
		}
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("pgfake: unsupported statement %q", query)
}

func (c *conn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailQuery {
		return nil, errors.New("pgfake: query refused")
	}
	if !strings.HasPrefix(strings.TrimSpace(query), "SELECT bucket, payload FROM brewcore_state") {
		return nil, fmt.Errorf("pgfake: unsupported query %q", query)
	}
	r := &rows{}
	for bucket, payload := range s.rows {
		r.data = append(r.data, [2]driver.Value{bucket, payload})
	}
	return r, nil
}

type tx struct{ srv *Server }

func (t tx) Commit() error {
	s := t.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inTx = false
	if s.FailCommit {
		s.pending = nil
		return errors.New("pgfake: commit refused")
	}
	for b, p := range s.pending {
		s.rows[b] = p
	}
	s.pending = nil
	return nil
}

func (t tx) Rollback() error {
	t.srv.mu.Lock()
	defer t.srv.mu.Unlock()
	t.srv.inTx, t.srv.pending = false, nil
	return nil
}

type rows struct {
	data [][2]driver.Value
	i    int
}

func (r *rows) Columns() []string { return []string{"bucket", "payload"} }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.i >= len(r.data) {
		return io.EOF
	}
	dest[0], dest[1] = r.data[r.i][0], r.data[r.i][1]
	r.i++
	return nil
}
