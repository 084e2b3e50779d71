// Package admin implements the administration orchestrator (§4.E): the
// two-phase commit discipline that drives initialize_cluster, create_set,
// update_set, drop_set, and upgrade_cluster across the coordination store
// and any number of PostgreSQL nodes.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"shoveld/internal/cluster"
	"shoveld/internal/codec"
	"shoveld/internal/logger"
	"shoveld/internal/metrics"
	"shoveld/internal/model"
	"shoveld/internal/postgres"
	"shoveld/internal/shovelerrors"
)

// Orchestrator drives every mutating cluster operation against one
// Cluster handle.
type Orchestrator struct {
	Cluster *cluster.Cluster
	Version string

	Log     *slog.Logger
	Audit   *logger.AuditLogger
	Metrics *metrics.Registry
}

// New returns an orchestrator bound to cl, recording every operation as
// having run under runningVersion.
func New(cl *cluster.Cluster, runningVersion string, log *slog.Logger, audit *logger.AuditLogger, m *metrics.Registry) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{Cluster: cl, Version: runningVersion, Log: log, Audit: audit, Metrics: m}
}

// DropSetOptions controls drop_set's tolerance for databases that can no
// longer be reached.
type DropSetOptions struct {
	SkipInaccessible bool
}

// InitializeCluster creates the cluster root and its sets parent in the
// coordination store. There is no Postgres work.
func (o *Orchestrator) InitializeCluster(ctx context.Context, actor string) error {
	start := time.Now()
	err := o.initializeCluster(ctx)
	o.finish(ctx, logger.AuditActionInitializeCluster, "initialize_cluster", actor, "", start, err)
	return err
}

func (o *Orchestrator) initializeCluster(ctx context.Context) error {
	cfg := model.ClusterConfiguration{Version: o.Version}
	value, err := codec.Encode(cfg)
	if err != nil {
		return err
	}

	txn := o.Cluster.Store().NewTxn().
		Create(o.Cluster.RootPath(), value).
		Create(o.Cluster.SetsPath(), nil)
	return txn.Commit(ctx)
}

// CreateSet acquires every database named in cfg, installs its queue and
// triggers, and stores the encoded configuration.
func (o *Orchestrator) CreateSet(ctx context.Context, actor, name string, cfg model.ReplicationSetConfiguration) error {
	start := time.Now()
	err := o.createSet(ctx, name, cfg)
	o.finish(ctx, logger.AuditActionCreateSet, "create_set", actor, name, start, err)
	return err
}

func (o *Orchestrator) createSet(ctx context.Context, name string, cfg model.ReplicationSetConfiguration) error {
	if err := o.Cluster.CheckVersion(ctx, o.Version); err != nil {
		return err
	}
	if err := model.ValidateSetConfiguration(cfg); err != nil {
		return err
	}

	version, err := model.Version(cfg)
	if err != nil {
		return err
	}

	// dsnsOf(cfg.Databases) is passed through undeduplicated: a literal
	// repeated DSN (or two distinct DSNs addressing the same node) must
	// reach AcquireManagedDatabases so its node-id comparison can raise
	// DuplicateNode (I1) rather than being silently collapsed here.
	acquired, err := postgres.AcquireManagedDatabases(ctx, o.Cluster, o.Version, dsnsOf(cfg.Databases), postgres.AcquireFlags{
		Configure:          true,
		RequireSameVersion: true,
	}, o.Log)
	if err != nil {
		return err
	}

	txnSet := postgres.NewTxnSet()
	nodeIDs := make([]string, 0, len(acquired))

	for _, a := range acquired {
		tx, err := o.txnFor(ctx, txnSet, a)
		if err != nil {
			txnSet.RollbackAll(ctx)
			return err
		}
		nodeIDs = append(nodeIDs, a.NodeID.String())

		if err := o.installSet(ctx, tx, name, cfg.Tables, version); err != nil {
			txnSet.RollbackAll(ctx)
			return err
		}
	}

	encoded, err := codec.Encode(cfg)
	if err != nil {
		txnSet.RollbackAll(ctx)
		return err
	}

	committed, err := txnSet.CommitAll(ctx, nodeIDs)
	if err != nil {
		return err
	}

	storeTxn := o.Cluster.Store().NewTxn().Create(o.Cluster.SetPath(name), encoded)
	if err := storeTxn.Commit(ctx); err != nil {
		return postgres.AsClusterPartial(committed, err)
	}
	return nil
}

// UpdateSet reconciles a set from its currently stored configuration to
// newCfg: additions are fully installed, mutations have their triggers
// replaced (and triggers for tables dropped between versions removed),
// and deletions are unconfigured.
func (o *Orchestrator) UpdateSet(ctx context.Context, actor, name string, newCfg model.ReplicationSetConfiguration) error {
	start := time.Now()
	err := o.updateSet(ctx, name, newCfg)
	o.finish(ctx, logger.AuditActionUpdateSet, "update_set", actor, name, start, err)
	return err
}

func (o *Orchestrator) updateSet(ctx context.Context, name string, newCfg model.ReplicationSetConfiguration) error {
	if err := o.Cluster.CheckVersion(ctx, o.Version); err != nil {
		return err
	}
	if err := model.ValidateSetConfiguration(newCfg); err != nil {
		return err
	}

	oldCfg, revision, err := o.Cluster.ReadSetConfiguration(ctx, name)
	if err != nil {
		return err
	}

	oldDSNs := setOf(dsnsOf(oldCfg.Databases))
	newDSNs := setOf(dsnsOf(newCfg.Databases))
	union := dedupDSNs(append(dsnsOf(oldCfg.Databases), dsnsOf(newCfg.Databases)...))

	acquired, err := postgres.AcquireManagedDatabases(ctx, o.Cluster, o.Version, union, postgres.AcquireFlags{
		Configure:          true,
		RequireSameVersion: true,
	}, o.Log)
	if err != nil {
		return err
	}

	version, err := model.Version(newCfg)
	if err != nil {
		return err
	}

	txnSet := postgres.NewTxnSet()
	nodeIDs := make([]string, 0, len(acquired))
	seenNode := make(map[uuid.UUID]string, len(acquired))

	for _, a := range acquired {
		_, inOld := oldDSNs[a.DSN]
		_, inNew := newDSNs[a.DSN]

		if class, dup := seenNode[a.NodeID]; dup {
			txnSet.RollbackAll(ctx)
			return fmt.Errorf("node %s appears in multiple classes (already %s): %w", a.NodeID, class, &shovelerrors.DuplicateNode{NodeID: a.NodeID.String(), DSNA: class, DSNB: a.DSN})
		}

		tx, err := o.txnFor(ctx, txnSet, a)
		if err != nil {
			txnSet.RollbackAll(ctx)
			return err
		}
		nodeIDs = append(nodeIDs, a.NodeID.String())

		switch {
		case inNew && !inOld:
			seenNode[a.NodeID] = "addition"
			if err := o.installSet(ctx, tx, name, newCfg.Tables, version); err != nil {
				txnSet.RollbackAll(ctx)
				return err
			}
		case inNew && inOld:
			seenNode[a.NodeID] = "mutation"
			removed := tablesRemoved(oldCfg.Tables, newCfg.Tables)
			for _, t := range removed {
				if err := postgres.DropTrigger(ctx, tx, o.Cluster.SchemaName(), o.Cluster.TriggerName(name), t); err != nil {
					txnSet.RollbackAll(ctx)
					return err
				}
			}
			if err := o.installSet(ctx, tx, name, newCfg.Tables, version); err != nil {
				txnSet.RollbackAll(ctx)
				return err
			}
		default: // inOld && !inNew
			seenNode[a.NodeID] = "deletion"
			if err := o.unconfigureSet(ctx, tx, name, oldCfg.Tables); err != nil {
				txnSet.RollbackAll(ctx)
				return err
			}
		}
	}

	encoded, err := codec.Encode(newCfg)
	if err != nil {
		txnSet.RollbackAll(ctx)
		return err
	}

	committed, err := txnSet.CommitAll(ctx, nodeIDs)
	if err != nil {
		return err
	}

	storeTxn := o.Cluster.Store().NewTxn().SetIf(o.Cluster.SetPath(name), encoded, revision)
	if err := storeTxn.Commit(ctx); err != nil {
		return postgres.AsClusterPartial(committed, err)
	}
	return nil
}

// DropSet unconfigures every listed database (tolerating inaccessible
// ones when requested) and deletes the set's coordination-store node.
func (o *Orchestrator) DropSet(ctx context.Context, actor, name string, opts DropSetOptions) error {
	start := time.Now()
	err := o.dropSet(ctx, name, opts)
	o.finish(ctx, logger.AuditActionDropSet, "drop_set", actor, name, start, err)
	return err
}

func (o *Orchestrator) dropSet(ctx context.Context, name string, opts DropSetOptions) error {
	cfg, revision, err := o.Cluster.ReadSetConfiguration(ctx, name)
	if err != nil {
		return err
	}

	acquired, err := postgres.AcquireManagedDatabases(ctx, o.Cluster, o.Version, dedupDSNs(dsnsOf(cfg.Databases)), postgres.AcquireFlags{
		Configure:          false,
		SkipInaccessible:   opts.SkipInaccessible,
		RequireSameVersion: true,
	}, o.Log)
	if err != nil {
		return err
	}

	txnSet := postgres.NewTxnSet()
	nodeIDs := make([]string, 0, len(acquired))

	for _, a := range acquired {
		tx, err := o.txnFor(ctx, txnSet, a)
		if err != nil {
			txnSet.RollbackAll(ctx)
			return err
		}
		nodeIDs = append(nodeIDs, a.NodeID.String())

		if err := o.unconfigureSet(ctx, tx, name, cfg.Tables); err != nil {
			txnSet.RollbackAll(ctx)
			return err
		}
	}

	committed, err := txnSet.CommitAll(ctx, nodeIDs)
	if err != nil {
		return err
	}

	storeTxn := o.Cluster.Store().NewTxn().Delete(o.Cluster.SetPath(name), &revision)
	if err := storeTxn.Commit(ctx); err != nil {
		return postgres.AsClusterPartial(committed, err)
	}
	return nil
}

// UpgradeCluster re-runs setup against every database referenced by any
// set — which replaces every trigger function body with one carrying
// newVersion — and rewrites the cluster's stored version. Unless force is
// set, newVersion must sort strictly after the currently stored version.
func (o *Orchestrator) UpgradeCluster(ctx context.Context, actor, newVersion string, force bool) error {
	start := time.Now()
	err := o.upgradeCluster(ctx, newVersion, force)
	o.finish(ctx, logger.AuditActionUpgradeCluster, "upgrade_cluster", actor, "", start, err)
	return err
}

func (o *Orchestrator) upgradeCluster(ctx context.Context, newVersion string, force bool) error {
	cfg, revision, err := o.Cluster.ReadConfiguration(ctx)
	if err != nil {
		return err
	}
	if !force && !versionLess(cfg.Version, newVersion) {
		return &shovelerrors.VersionMismatch{Local: newVersion, Node: cfg.Version}
	}

	sets, err := o.Cluster.Store().BulkGet(ctx, o.Cluster.SetsPath())
	if err != nil {
		return err
	}

	dsnSet := make(map[string]struct{})
	for _, n := range sets {
		if !n.Found || len(n.Value) == 0 {
			continue
		}
		var setCfg model.ReplicationSetConfiguration
		if err := codec.Decode(n.Value, &setCfg, codec.Lax); err != nil {
			return err
		}
		for _, dsn := range dsnsOf(setCfg.Databases) {
			dsnSet[dsn] = struct{}{}
		}
	}

	dsns := make([]string, 0, len(dsnSet))
	for dsn := range dsnSet {
		dsns = append(dsns, dsn)
	}

	acquired, err := postgres.AcquireManagedDatabases(ctx, o.Cluster, newVersion, dsns, postgres.AcquireFlags{
		Configure:          true,
		RequireSameVersion: false,
	}, o.Log)
	if err != nil {
		return err
	}

	txnSet := postgres.NewTxnSet()
	nodeIDs := make([]string, 0, len(acquired))

	for _, a := range acquired {
		if a.Txn == nil {
			fresh, err := postgres.Open(ctx, a.DSN)
			if err != nil {
				txnSet.RollbackAll(ctx)
				return &shovelerrors.ConnectionFailed{DSN: a.DSN, Cause: err}
			}
			txnSet.Add(fresh)
			if _, err := postgres.Setup(ctx, fresh.Tx, o.Cluster.SchemaName(), newVersion); err != nil {
				txnSet.RollbackAll(ctx)
				return err
			}
		} else {
			txnSet.Add(a.Txn)
		}
		nodeIDs = append(nodeIDs, a.NodeID.String())
	}

	committed, err := txnSet.CommitAll(ctx, nodeIDs)
	if err != nil {
		return err
	}

	encoded, err := codec.Encode(model.ClusterConfiguration{Version: newVersion})
	if err != nil {
		return err
	}

	storeTxn := o.Cluster.Store().NewTxn().SetIf(o.Cluster.RootPath(), encoded, revision)
	if err := storeTxn.Commit(ctx); err != nil {
		return postgres.AsClusterPartial(committed, err)
	}
	return nil
}

// txnFor returns the transaction to run DDL against for an acquired
// node: the setup transaction if one is already open, or a freshly
// opened one registered with txnSet otherwise. Either way the returned
// transaction is a member of txnSet and will be committed or rolled back
// as part of the caller's batch.
func (o *Orchestrator) txnFor(ctx context.Context, txnSet *postgres.TxnSet, a postgres.AcquiredDatabase) (pgx.Tx, error) {
	if a.Txn != nil {
		txnSet.Add(a.Txn)
		return a.Txn.Tx, nil
	}
	fresh, err := postgres.Open(ctx, a.DSN)
	if err != nil {
		return nil, &shovelerrors.ConnectionFailed{DSN: a.DSN, Cause: err}
	}
	txnSet.Add(fresh)
	return fresh.Tx, nil
}

func (o *Orchestrator) installSet(ctx context.Context, tx pgx.Tx, setName string, tables []model.Table, version string) error {
	queueName := o.Cluster.QueueName(setName)
	if err := ensureQueue(ctx, tx, queueName); err != nil {
		return err
	}
	for _, t := range tables {
		if err := postgres.InstallTrigger(ctx, tx, o.Cluster.SchemaName(), o.Cluster.TriggerName(setName), queueName, t, version); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) unconfigureSet(ctx context.Context, tx pgx.Tx, setName string, tables []model.Table) error {
	for _, t := range tables {
		if err := postgres.DropTrigger(ctx, tx, o.Cluster.SchemaName(), o.Cluster.TriggerName(setName), t); err != nil {
			return err
		}
	}
	return dropQueue(ctx, tx, o.Cluster.QueueName(setName))
}

// finish records the structured log line, audit event, and metrics for
// one administration operation outcome.
func (o *Orchestrator) finish(ctx context.Context, action logger.AuditAction, op, actor, set string, start time.Time, err error) {
	outcome := logger.AuditOutcomeSuccess
	if err != nil {
		outcome = logger.AuditOutcomeFailure
		var partial *shovelerrors.ClusterPartial
		if errors.As(err, &partial) {
			outcome = logger.AuditOutcomePartial
		}
	}

	duration := time.Since(start)
	o.Log.Info("administration operation finished", "operation", op, "cluster", o.Cluster.Name, "set", set, "outcome", string(outcome), "duration", duration, "error", errString(err))

	if o.Audit != nil {
		o.Audit.Log(ctx, logger.AuditEvent{Action: action, Actor: actor, Cluster: o.Cluster.Name, Set: set, Outcome: outcome})
	}
	if o.Metrics != nil {
		o.Metrics.AdminOperationsTotal.WithLabelValues(op, string(outcome)).Inc()
		o.Metrics.AdminOperationDuration.WithLabelValues(op).Observe(duration.Seconds())
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func dsnsOf(dbs []model.Database) []string {
	out := make([]string, 0, len(dbs))
	for _, d := range dbs {
		out = append(out, d.DSN)
	}
	return out
}

func setOf(dsns []string) map[string]struct{} {
	out := make(map[string]struct{}, len(dsns))
	for _, d := range dsns {
		out[d] = struct{}{}
	}
	return out
}

func dedupDSNs(dsns []string) []string {
	seen := make(map[string]struct{}, len(dsns))
	out := make([]string, 0, len(dsns))
	for _, d := range dsns {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

// tablesRemoved returns the tables present in oldTables but absent (by
// qualified name) from newTables.
func tablesRemoved(oldTables, newTables []model.Table) []model.Table {
	keep := make(map[string]struct{}, len(newTables))
	for _, t := range newTables {
		keep[t.QualifiedName()] = struct{}{}
	}
	var removed []model.Table
	for _, t := range oldTables {
		if _, ok := keep[t.QualifiedName()]; !ok {
			removed = append(removed, t)
		}
	}
	return removed
}

// versionLess reports whether a sorts strictly before b under dotted-
// numeric semver-ish ordering: each run of digits is compared as an
// integer, left to right.
func versionLess(a, b string) bool {
	as, bs := splitVersion(a), splitVersion(b)
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		if av != bv {
			return av < bv
		}
	}
	return false
}

func splitVersion(v string) []int {
	var out []int
	cur := 0
	have := false
	for _, r := range v {
		if r >= '0' && r <= '9' {
			cur = cur*10 + int(r-'0')
			have = true
			continue
		}
		if have {
			out = append(out, cur)
		}
		cur = 0
		have = false
	}
	if have {
		out = append(out, cur)
	}
	return out
}
