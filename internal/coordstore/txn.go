package coordstore

import (
	"context"
	"database/sql"
	"fmt"

	"shoveld/internal/shovelerrors"
)

type opKind int

const (
	opCreate opKind = iota
	opSet
	opCheckVersion
	opDelete
)

type op struct {
	kind             opKind
	path             string
	value            []byte
	expectedRevision *int64
}

// Txn batches Create/Set/CheckVersion/Delete operations and commits them
// inside a single database transaction, satisfying the "multi-op
// transaction primitive... committed atomically" requirement of §6. It is
// the Go analogue of the ordered list of staged writes the administration
// orchestrator accumulates before its commit phase.
type Txn struct {
	store *Store
	ops   []op
}

// Create stages a brand-new path. Commit fails with
// CoordinationStoreConflict if the path already exists.
func (t *Txn) Create(path string, value []byte) *Txn {
	t.ops = append(t.ops, op{kind: opCreate, path: path, value: value})
	return t
}

// Set stages an unconditional write (insert-or-update) of path.
func (t *Txn) Set(path string, value []byte) *Txn {
	t.ops = append(t.ops, op{kind: opSet, path: path, value: value})
	return t
}

// SetIf stages a write conditioned on the path's current revision
// matching expectedRevision — the "store-write conditioned on revision"
// mechanism update_set and upgrade_cluster rely on (drop_set passes its
// revision to Delete instead).
func (t *Txn) SetIf(path string, value []byte, expectedRevision int64) *Txn {
	t.ops = append(t.ops, op{kind: opSet, path: path, value: value, expectedRevision: &expectedRevision})
	return t
}

// CheckVersion stages a read-only assertion that path's current revision
// equals expectedRevision, without mutating it.
func (t *Txn) CheckVersion(path string, expectedRevision int64) *Txn {
	t.ops = append(t.ops, op{kind: opCheckVersion, path: path, expectedRevision: &expectedRevision})
	return t
}

// Delete stages removal of path, optionally conditioned on its revision.
func (t *Txn) Delete(path string, expectedRevision *int64) *Txn {
	t.ops = append(t.ops, op{kind: opDelete, path: path, expectedRevision: expectedRevision})
	return t
}

// Commit applies every staged operation atomically. On any failure the
// whole transaction rolls back and no op takes effect.
func (t *Txn) Commit(ctx context.Context) error {
	tx, err := t.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin coordination store transaction: %w", err)
	}
	defer tx.Rollback()

	now := nowUnix()

	for _, o := range t.ops {
		switch o.kind {
		case opCreate:
			var exists int
			if err := tx.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE path = ?`, o.path).Scan(&exists); err != sql.ErrNoRows {
				if err == nil {
					return &shovelerrors.CoordinationStoreConflict{Path: o.path, Revision: 0}
				}
				return fmt.Errorf("check existence of %s: %w", o.path, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO nodes (path, value, revision, created_at, updated_at) VALUES (?, ?, 1, ?, ?)`, o.path, o.value, now, now); err != nil {
				return fmt.Errorf("create %s: %w", o.path, err)
			}

		case opSet:
			cur, err := currentRevision(ctx, tx, o.path)
			if err != nil {
				return err
			}
			if o.expectedRevision != nil && cur.revision != *o.expectedRevision {
				return &shovelerrors.CoordinationStoreConflict{Path: o.path, Revision: *o.expectedRevision}
			}
			if !cur.found {
				if _, err := tx.ExecContext(ctx, `INSERT INTO nodes (path, value, revision, created_at, updated_at) VALUES (?, ?, 1, ?, ?)`, o.path, o.value, now, now); err != nil {
					return fmt.Errorf("set %s: %w", o.path, err)
				}
				continue
			}
			if _, err := tx.ExecContext(ctx, `UPDATE nodes SET value = ?, revision = revision + 1, updated_at = ? WHERE path = ?`, o.value, now, o.path); err != nil {
				return fmt.Errorf("set %s: %w", o.path, err)
			}

		case opCheckVersion:
			cur, err := currentRevision(ctx, tx, o.path)
			if err != nil {
				return err
			}
			if o.expectedRevision != nil && cur.revision != *o.expectedRevision {
				return &shovelerrors.CoordinationStoreConflict{Path: o.path, Revision: *o.expectedRevision}
			}

		case opDelete:
			cur, err := currentRevision(ctx, tx, o.path)
			if err != nil {
				return err
			}
			if o.expectedRevision != nil && cur.revision != *o.expectedRevision {
				return &shovelerrors.CoordinationStoreConflict{Path: o.path, Revision: *o.expectedRevision}
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE path = ?`, o.path); err != nil {
				return fmt.Errorf("delete %s: %w", o.path, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit coordination store transaction: %w", err)
	}
	return nil
}

type revisionRow struct {
	revision int64
	found    bool
}

func currentRevision(ctx context.Context, tx *sql.Tx, path string) (revisionRow, error) {
	var rev int64
	err := tx.QueryRowContext(ctx, `SELECT revision FROM nodes WHERE path = ?`, path).Scan(&rev)
	if err == sql.ErrNoRows {
		return revisionRow{}, nil
	}
	if err != nil {
		return revisionRow{}, fmt.Errorf("read revision of %s: %w", path, err)
	}
	return revisionRow{revision: rev, found: true}, nil
}
