// Package cluster derives the coordination-store paths and Postgres
// object names a cluster's administration and consumption operations
// share, and checks the cluster's stored version against the running
// software version.
package cluster

import (
	"context"
	"fmt"

	"shoveld/internal/codec"
	"shoveld/internal/coordstore"
	"shoveld/internal/model"
	"shoveld/internal/shovelerrors"
)

// Cluster is a handle on one named cluster: it knows how to turn that
// name into coordination-store paths and Postgres object names, but it
// holds no connections of its own.
type Cluster struct {
	Name    string
	Prefix  string
	store   *coordstore.Store
}

// New returns a handle for the named cluster, rooted under prefix in the
// coordination store (e.g. prefix "shovel", name "c" -> root "/shovel/c").
func New(store *coordstore.Store, prefix, name string) *Cluster {
	if prefix == "" {
		prefix = "shovel"
	}
	return &Cluster{Name: name, Prefix: prefix, store: store}
}

// RootPath is the coordination-store path holding the ClusterConfiguration.
func (c *Cluster) RootPath() string {
	return fmt.Sprintf("/%s/%s", c.Prefix, c.Name)
}

// SetsPath is the parent path under which every set's configuration lives.
func (c *Cluster) SetsPath() string {
	return c.RootPath() + "/sets"
}

// SetPath is the path for a single named set's ReplicationSetConfiguration.
func (c *Cluster) SetPath(setName string) string {
	return fmt.Sprintf("%s/%s", c.SetsPath(), setName)
}

// LeaseRoot is the path prefix under which consumer ownership leases for
// this cluster are acquired.
func (c *Cluster) LeaseRoot(consumerGroup, setName string) string {
	return fmt.Sprintf("%s/leases/%s/%s", c.RootPath(), consumerGroup, setName)
}

// SchemaName is the Postgres schema name installed on every managed
// database for this cluster. Cluster names are already constrained to
// valid identifier characters by the CLI/config layer, so this is an
// identity mapping kept as its own method for callers that may want to
// sanitize later without touching every call site.
func (c *Cluster) SchemaName() string {
	return c.Name
}

// QueueName is the external queue extension's name for a given set.
func (c *Cluster) QueueName(setName string) string {
	return fmt.Sprintf("%s_%s", c.Name, setName)
}

// TriggerName is the trigger name installed on every table of a given set.
func (c *Cluster) TriggerName(setName string) string {
	return fmt.Sprintf("%s_%s", c.Name, setName)
}

// ReadConfiguration loads the cluster's ClusterConfiguration and the
// coordination-store revision it was read at.
func (c *Cluster) ReadConfiguration(ctx context.Context) (model.ClusterConfiguration, int64, error) {
	node, err := c.store.Get(ctx, c.RootPath())
	if err != nil {
		return model.ClusterConfiguration{}, 0, err
	}
	if !node.Found {
		return model.ClusterConfiguration{}, 0, fmt.Errorf("cluster %s is not initialized", c.Name)
	}

	var cfg model.ClusterConfiguration
	if err := codec.Decode(node.Value, &cfg, codec.Strict); err != nil {
		return model.ClusterConfiguration{}, 0, err
	}
	return cfg, node.Revision, nil
}

// CheckVersion reads the cluster's stored version and compares it against
// runningVersion, failing with VersionMismatch on divergence. Called by
// the orchestrator before every mutating operation except
// initialize_cluster and upgrade_cluster itself.
func (c *Cluster) CheckVersion(ctx context.Context, runningVersion string) error {
	cfg, _, err := c.ReadConfiguration(ctx)
	if err != nil {
		return err
	}
	if cfg.Version != runningVersion {
		return &shovelerrors.VersionMismatch{Local: runningVersion, Node: cfg.Version}
	}
	return nil
}

// ReadSetConfiguration loads a set's ReplicationSetConfiguration and the
// revision it was read at.
func (c *Cluster) ReadSetConfiguration(ctx context.Context, setName string) (model.ReplicationSetConfiguration, int64, error) {
	node, err := c.store.Get(ctx, c.SetPath(setName))
	if err != nil {
		return model.ReplicationSetConfiguration{}, 0, err
	}
	if !node.Found {
		return model.ReplicationSetConfiguration{}, 0, fmt.Errorf("set %s does not exist in cluster %s", setName, c.Name)
	}

	var cfg model.ReplicationSetConfiguration
	if err := codec.Decode(node.Value, &cfg, codec.Lax); err != nil {
		return model.ReplicationSetConfiguration{}, 0, err
	}
	return cfg, node.Revision, nil
}

// Store exposes the underlying coordination store for components (the
// orchestrator, the lease acquirer) that need to stage transactions
// beyond what Cluster's own read helpers provide.
func (c *Cluster) Store() *coordstore.Store {
	return c.store
}
