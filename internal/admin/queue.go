package admin

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ensureQueue creates the named queue via the queue extension if it does
// not already exist. create_queue is not idempotent on its own (the
// extension raises on a duplicate name), so existence is checked first —
// this keeps create_set/update_set safe to retry after a partial failure.
func ensureQueue(ctx context.Context, tx pgx.Tx, name string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pgq.queue WHERE queue_name = $1)`, name).Scan(&exists); err != nil {
		return fmt.Errorf("check queue %s: %w", name, err)
	}
	if exists {
		return nil
	}
	if _, err := tx.Exec(ctx, `SELECT pgq.create_queue($1)`, name); err != nil {
		return fmt.Errorf("create queue %s: %w", name, err)
	}
	return nil
}

// dropQueue removes the named queue if present.
func dropQueue(ctx context.Context, tx pgx.Tx, name string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pgq.queue WHERE queue_name = $1)`, name).Scan(&exists); err != nil {
		return fmt.Errorf("check queue %s: %w", name, err)
	}
	if !exists {
		return nil
	}
	if _, err := tx.Exec(ctx, `SELECT pgq.drop_queue($1)`, name); err != nil {
		return fmt.Errorf("drop queue %s: %w", name, err)
	}
	return nil
}
