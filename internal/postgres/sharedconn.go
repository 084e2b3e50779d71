package postgres

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
)

// SharedConn serializes access to one long-lived *pgx.Conn shared between
// a Coordinator and the Consumers it supervises (§5): a Coordinator and
// its Consumers take turns running short transactions on the same
// connection, never concurrently. The hand-off slot discipline is what
// is supposed to make concurrent use impossible in practice (a Consumer
// only touches the database while its hand-off slot is empty, and the
// Coordinator only touches it while draining that slot) — the mutex here
// is the belt to that discipline's suspenders, since *pgx.Conn itself is
// not safe for concurrent use.
type SharedConn struct {
	mu   sync.Mutex
	conn *pgx.Conn
}

// NewSharedConn wraps an already-open connection.
func NewSharedConn(conn *pgx.Conn) *SharedConn {
	return &SharedConn{conn: conn}
}

// WithTx runs fn inside a new transaction on the shared connection,
// committing on a nil return and rolling back otherwise.
func (s *SharedConn) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Close releases the underlying connection.
func (s *SharedConn) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close(ctx)
}
