package postgres

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"shoveld/internal/cluster"
	"shoveld/internal/shovelerrors"
)

// AcquireFlags controls the managed database acquirer's behavior,
// mirroring §4.D's inputs exactly.
type AcquireFlags struct {
	Configure          bool
	SkipInaccessible   bool
	RequireSameVersion bool
}

// AcquiredDatabase is one successfully acquired node: the DSN it was
// resolved from, the node id it resolved to, and — only when the node
// needed setup — the open, uncommitted transaction that setup ran in.
// When Txn is nil the node was already configured and its probe
// transaction committed read-only; a caller that needs to apply further
// DDL/DML against this node opens its own transaction against DSN.
type AcquiredDatabase struct {
	DSN    string
	NodeID uuid.UUID
	Txn    *ManagedTxn
}

// AcquireManagedDatabases implements §4.D: given a set of DSNs and a
// cluster handle, it opens connections, de-duplicates by node id,
// configures uninitialized nodes under an advisory-lock deadlock guard,
// and returns one AcquiredDatabase per node in DSN order. When
// RequireSameVersion is set, the cluster version is checked up front with
// cl.CheckVersion; no coordination-store transaction is returned. Every
// setup transaction this function returns is left open (Txn is nil for
// nodes that were already configured); on any error it closes everything
// it opened itself before returning.
func AcquireManagedDatabases(ctx context.Context, cl *cluster.Cluster, runningVersion string, dsns []string, flags AcquireFlags, log *slog.Logger) ([]AcquiredDatabase, error) {
	if flags.RequireSameVersion {
		if err := cl.CheckVersion(ctx, runningVersion); err != nil {
			return nil, err
		}
	}

	lockToken, err := newLockToken()
	if err != nil {
		return nil, fmt.Errorf("generate advisory lock token: %w", err)
	}

	var acquired []AcquiredDatabase
	byNode := make(map[uuid.UUID]string, len(dsns))

	rollbackAll := func() {
		for _, a := range acquired {
			if a.Txn == nil {
				continue
			}
			_ = a.Txn.Rollback(ctx)
			a.Txn.Close(ctx)
		}
	}

	for _, dsn := range dsns {
		nodeID, txn, err := acquireOne(ctx, cl, runningVersion, dsn, lockToken, flags)
		if err != nil {
			var connErr *shovelerrors.ConnectionFailed
			if errors.As(err, &connErr) && flags.SkipInaccessible {
				if log != nil {
					log.Warn("skipping inaccessible database", "dsn", shovelerrors.RedactDSN(dsn), "error", err)
				}
				continue
			}
			rollbackAll()
			return nil, err
		}

		if existingDSN, dup := byNode[nodeID]; dup {
			if txn != nil {
				_ = txn.Rollback(ctx)
				txn.Close(ctx)
			}
			rollbackAll()
			return nil, &shovelerrors.DuplicateNode{NodeID: nodeID.String(), DSNA: existingDSN, DSNB: dsn}
		}
		byNode[nodeID] = dsn

		acquired = append(acquired, AcquiredDatabase{DSN: dsn, NodeID: nodeID, Txn: txn})
	}

	return acquired, nil
}

// acquireOne runs steps 3-6 of §4.D for a single DSN. It returns a nil
// txn when the node was already configured and no mutation is pending
// (the probe was committed read-only); callers of the orchestrator that
// still need a transaction to apply DDL/DML open their own against the
// DSN.
func acquireOne(ctx context.Context, cl *cluster.Cluster, runningVersion, dsn string, lockToken int64, flags AcquireFlags) (uuid.UUID, *ManagedTxn, error) {
	probe, err := Open(ctx, dsn)
	if err != nil {
		return uuid.Nil, nil, &shovelerrors.ConnectionFailed{DSN: dsn, Cause: err}
	}

	schema := cl.SchemaName()
	nodeID, err := ReadNodeID(ctx, probe.Tx, schema)

	switch {
	case errors.Is(err, ErrConfigurationTableMissing):
		_ = probe.Rollback(ctx)
		probe.Close(ctx)

		if !flags.Configure {
			return uuid.Nil, nil, &shovelerrors.NotConfigured{DSN: dsn}
		}

		setup, err := Open(ctx, dsn)
		if err != nil {
			return uuid.Nil, nil, &shovelerrors.ConnectionFailed{DSN: dsn, Cause: err}
		}

		var gotLock bool
		if err := setup.Tx.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, lockToken).Scan(&gotLock); err != nil {
			_ = setup.Rollback(ctx)
			setup.Close(ctx)
			return uuid.Nil, nil, fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !gotLock {
			_ = setup.Rollback(ctx)
			setup.Close(ctx)
			return uuid.Nil, nil, &shovelerrors.PossibleDeadlock{DSN: dsn}
		}

		nodeID, err := Setup(ctx, setup.Tx, schema, runningVersion)
		if err != nil {
			_ = setup.Rollback(ctx)
			setup.Close(ctx)
			return uuid.Nil, nil, err
		}

		return nodeID, setup, nil

	case err != nil:
		_ = probe.Rollback(ctx)
		probe.Close(ctx)
		return uuid.Nil, nil, fmt.Errorf("read node id from %s: %w", shovelerrors.RedactDSN(dsn), err)

	default:
		if flags.RequireSameVersion {
			version, err := ReadVersion(ctx, probe.Tx, schema)
			if err != nil {
				_ = probe.Rollback(ctx)
				probe.Close(ctx)
				return uuid.Nil, nil, fmt.Errorf("read version from %s: %w", shovelerrors.RedactDSN(dsn), err)
			}
			if version != runningVersion {
				_ = probe.Rollback(ctx)
				probe.Close(ctx)
				return uuid.Nil, nil, &shovelerrors.VersionMismatch{Local: runningVersion, Node: version}
			}
		}
		if err := probe.Commit(ctx); err != nil {
			probe.Close(ctx)
			return uuid.Nil, nil, fmt.Errorf("commit probe transaction on %s: %w", shovelerrors.RedactDSN(dsn), err)
		}
		probe.Close(ctx)
		return nodeID, nil, nil
	}
}

func newLockToken() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:]) >> 1), nil // keep it a valid signed bigint
}
