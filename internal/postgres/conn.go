// Package postgres implements the database bootstrap (§4.C), the managed
// database acquirer (§4.D), and the trigger manager (§4.F) against real
// PostgreSQL connections via jackc/pgx/v5. Administration components hold
// exactly one long-lived logical connection per database across a
// multi-step transaction (the 2PC staging in internal/admin, or the
// Coordinator/Consumer shared-connection discipline in §5) rather than a
// rotating pool, so this package wraps *pgx.Conn directly instead of
// pgxpool.Pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"shoveld/internal/shovelerrors"
)

// ManagedTxn pairs one open Postgres transaction with the connection it
// runs on and the DSN it was opened against. It is left uncommitted by
// every function that produces one (bootstrap, acquirer); committing or
// rolling back, and closing the underlying connection, is always the
// caller's responsibility — this is the "uncommitted until the
// orchestrator commits them as a batch" resource in §5.
type ManagedTxn struct {
	Conn *pgx.Conn
	Tx   pgx.Tx
	DSN  string

	committed  bool
	rolledBack bool
}

// Commit commits the transaction. Safe to call at most once.
func (m *ManagedTxn) Commit(ctx context.Context) error {
	if m.committed || m.rolledBack {
		return nil
	}
	if err := m.Tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction on %s: %w", shovelerrors.RedactDSN(m.DSN), err)
	}
	m.committed = true
	return nil
}

// Rollback rolls back the transaction. Safe to call at most once, and
// safe to call after Commit (no-op).
func (m *ManagedTxn) Rollback(ctx context.Context) error {
	if m.committed || m.rolledBack {
		return nil
	}
	m.rolledBack = true
	return m.Tx.Rollback(ctx)
}

// Close releases the underlying connection. Session-level advisory locks
// taken on this connection (pg_try_advisory_lock) survive Commit/Rollback
// and are released when Close ends the session; there is no pool for the
// session to outlive the transaction in.
func (m *ManagedTxn) Close(ctx context.Context) {
	_ = m.Conn.Close(ctx)
}

// Open opens a fresh connection and a fresh transaction against dsn.
func Open(ctx context.Context, dsn string) (*ManagedTxn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return &ManagedTxn{Conn: conn, Tx: tx, DSN: dsn}, nil
}
