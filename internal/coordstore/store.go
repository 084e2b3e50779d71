// Package coordstore implements the coordination-store contract required
// by §6: a hierarchical namespace with per-node revisions, a multi-op
// transaction primitive committed atomically, an exclusive-lease recipe,
// and bulk get. No ZooKeeper- or etcd-class client library appears
// anywhere in the example pack this project was grown from, and this
// project refuses to fabricate a fake dependency behind a replace
// directive — so the contract is implemented directly, embedded,
// file-backed, and pure Go, using the same modernc.org/sqlite driver the
// reference codebase already reaches for when it needs persistent local
// state without cgo.
package coordstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Node is one path's stored value and revision.
type Node struct {
	Path     string
	Value    []byte
	Revision int64
	Found    bool
}

// Store is a hierarchical, versioned key-value store with multi-op
// transactions and a lease primitive, backed by a local sqlite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the coordination store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open coordination store: %w", err)
	}
	// The embedded store is accessed by many short-lived transactions
	// from several goroutines; sqlite serializes writers regardless, so
	// a single connection avoids SQLITE_BUSY churn under contention.
	db.SetMaxOpenConns(1)

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply coordination store migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get reads a single path's current value and revision.
func (s *Store) Get(ctx context.Context, path string) (Node, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value, revision FROM nodes WHERE path = ?`, path)
	var n Node
	n.Path = path
	if err := row.Scan(&n.Value, &n.Revision); err != nil {
		if err == sql.ErrNoRows {
			return n, nil
		}
		return n, fmt.Errorf("get %s: %w", path, err)
	}
	n.Found = true
	return n, nil
}

// BulkGet reads the prefix's own node and every path under it, ordered
// by path, satisfying the "asynchronous
// bulk get" requirement of §6 (the call itself takes a context and can be
// cancelled; there is no further async machinery to model in-process).
func (s *Store) BulkGet(ctx context.Context, prefix string) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, value, revision FROM nodes WHERE path = ? OR path LIKE ? ORDER BY path`, prefix, prefix+"/%")
	if err != nil {
		return nil, fmt.Errorf("bulk get %s: %w", prefix, err)
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.Path, &n.Value, &n.Revision); err != nil {
			return nil, fmt.Errorf("scan bulk get row: %w", err)
		}
		n.Found = true
		out = append(out, n)
	}
	return out, rows.Err()
}

// NewTxn begins building a multi-op transaction. Nothing is applied until
// Commit is called.
func (s *Store) NewTxn() *Txn {
	return &Txn{store: s}
}

func nowUnix() int64 {
	return time.Now().Unix()
}
