package coordstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"shoveld/internal/shovelerrors"
)

// Lease is an exclusive, named claim on a path, held by a single holder
// identity until it is released, renewed past expiry, or expires. It is
// the recipe-level exclusive-lease primitive §6 requires, and the
// mechanism behind invariant I5 (single consumer per capture group).
type Lease struct {
	store    *Store
	path     string
	holder   string
	revision int64
}

// Path returns the lease's path.
func (l *Lease) Path() string { return l.path }

// AcquireLease attempts to acquire the named lease, retrying with bounded
// backoff until ctx is cancelled. The retry pacing uses a token-bucket
// limiter rather than a fixed sleep so acquisition attempts self-throttle
// under contention without needing a separate timer goroutine.
func AcquireLease(ctx context.Context, store *Store, path, holder string, ttl, pollEvery time.Duration) (*Lease, error) {
	if pollEvery <= 0 {
		pollEvery = 50 * time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Every(pollEvery), 1)

	for {
		lease, acquired, err := tryAcquire(ctx, store, path, holder, ttl)
		if err != nil {
			return nil, &shovelerrors.LeaseAcquisitionFailed{Path: path, Cause: err}
		}
		if acquired {
			return lease, nil
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil, &shovelerrors.LeaseAcquisitionFailed{Path: path, Cause: ctx.Err()}
		}
	}
}

func tryAcquire(ctx context.Context, store *Store, path, holder string, ttl time.Duration) (*Lease, bool, error) {
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin lease transaction: %w", err)
	}
	defer tx.Rollback()

	now := nowUnix()
	expiresAt := time.Now().Add(ttl).Unix()

	var curHolder string
	var curExpires, curRevision int64
	err = tx.QueryRowContext(ctx, `SELECT holder, expires_at, revision FROM leases WHERE path = ?`, path).Scan(&curHolder, &curExpires, &curRevision)

	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `INSERT INTO leases (path, holder, expires_at, revision) VALUES (?, ?, ?, 1)`, path, holder, expiresAt); err != nil {
			return nil, false, fmt.Errorf("insert lease %s: %w", path, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit lease %s: %w", path, err)
		}
		return &Lease{store: store, path: path, holder: holder, revision: 1}, true, nil

	case err != nil:
		return nil, false, fmt.Errorf("read lease %s: %w", path, err)

	case curExpires <= now || curHolder == holder:
		newRevision := curRevision + 1
		if _, err := tx.ExecContext(ctx, `UPDATE leases SET holder = ?, expires_at = ?, revision = ? WHERE path = ?`, holder, expiresAt, newRevision, path); err != nil {
			return nil, false, fmt.Errorf("reclaim lease %s: %w", path, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit lease %s: %w", path, err)
		}
		return &Lease{store: store, path: path, holder: holder, revision: newRevision}, true, nil

	default:
		return nil, false, nil
	}
}

// StillHeld reports whether the lease is still held by its holder and has
// not expired.
func (l *Lease) StillHeld(ctx context.Context) (bool, error) {
	var holder string
	var expiresAt int64
	err := l.store.db.QueryRowContext(ctx, `SELECT holder, expires_at FROM leases WHERE path = ?`, l.path).Scan(&holder, &expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check lease %s: %w", l.path, err)
	}
	return holder == l.holder && expiresAt > nowUnix(), nil
}

// Renew extends the lease's expiry, failing with LeaseLost if another
// holder has since taken it over.
func (l *Lease) Renew(ctx context.Context, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).Unix()
	res, err := l.store.db.ExecContext(ctx, `UPDATE leases SET expires_at = ?, revision = revision + 1 WHERE path = ? AND holder = ?`, expiresAt, l.path, l.holder)
	if err != nil {
		return fmt.Errorf("renew lease %s: %w", l.path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("renew lease %s: %w", l.path, err)
	}
	if n == 0 {
		return &shovelerrors.LeaseLost{Path: l.path}
	}
	return nil
}

// Release gives up the lease if still held by its holder. Releasing a
// lease this holder no longer owns is a no-op, matching the "release in
// finally" discipline the Consumer actor relies on.
func (l *Lease) Release(ctx context.Context) error {
	if _, err := l.store.db.ExecContext(ctx, `DELETE FROM leases WHERE path = ? AND holder = ?`, l.path, l.holder); err != nil {
		return fmt.Errorf("release lease %s: %w", l.path, err)
	}
	return nil
}
