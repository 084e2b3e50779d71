package postgres

import (
	"context"
	"fmt"

	"shoveld/internal/shovelerrors"
)

// TxnSet is the scoped group of open Postgres transactions the
// administration orchestrator accumulates during the acquire/mutate
// phases of a two-phase commit (§4.E, §9 "Ambient resources" note). It
// commits every member on normal exit and rolls back every member still
// open on any exceptional exit — the Go analogue of the reference
// "managed transaction" pattern, without that pattern's per-statement
// role-switching (not applicable to this domain: every connection here
// runs as whatever role the DSN already authenticates as).
type TxnSet struct {
	members []*ManagedTxn
}

// NewTxnSet returns an empty set.
func NewTxnSet() *TxnSet {
	return &TxnSet{}
}

// Add registers a transaction as a member of the set.
func (s *TxnSet) Add(t *ManagedTxn) {
	s.members = append(s.members, t)
}

// Members returns the set's transactions in registration order.
func (s *TxnSet) Members() []*ManagedTxn {
	return s.members
}

// RollbackAll rolls back and closes every member, best-effort. Used on
// any path that aborts before the commit phase.
func (s *TxnSet) RollbackAll(ctx context.Context) {
	for _, m := range s.members {
		_ = m.Rollback(ctx)
		m.Close(ctx)
	}
}

// CommitAll commits every member in registration order. If a commit
// fails partway through, every member still open (including the one that
// failed) is rolled back and closed, and the node ids (nodeIDs[i] for
// member i) that had already committed are returned alongside the error.
// On success the caller passes the returned ids to AsClusterPartial if
// its coordination-store commit then fails.
func (s *TxnSet) CommitAll(ctx context.Context, nodeIDs []string) ([]string, error) {
	committed := make([]string, 0, len(s.members))
	for i, m := range s.members {
		if err := m.Commit(ctx); err != nil {
			for _, rest := range s.members[i:] {
				_ = rest.Rollback(ctx)
				rest.Close(ctx)
			}
			return committed, fmt.Errorf("commit postgres transaction for %s: %w", shovelerrors.RedactDSN(m.DSN), err)
		}
		m.Close(ctx)
		if i < len(nodeIDs) {
			committed = append(committed, nodeIDs[i])
		}
	}
	return committed, nil
}

// AsClusterPartial wraps a coordination-store commit failure that
// occurred after Postgres commits already succeeded, per §4.E step 5.
func AsClusterPartial(committedNodeIDs []string, storeCommitErr error) error {
	return &shovelerrors.ClusterPartial{CommittedNodeIDs: committedNodeIDs, Cause: storeCommitErr}
}
