// Package model defines the data model shared by the administration
// orchestrator, the database bootstrap, and the trigger manager:
// ClusterConfiguration, ReplicationSetConfiguration, and their
// constituent Database and Table types.
package model

import (
	"fmt"

	"shoveld/internal/codec"
)

// ClusterConfiguration is stored at the cluster root in the coordination
// store. It is intentionally the only value strict-decoded: an unknown
// field here means a newer software version wrote it and this process
// must not guess at its meaning.
type ClusterConfiguration struct {
	Version string `msgpack:"version"`
}

// Database is one PostgreSQL connection target within a replication set.
// Uniqueness is by dsn within a set's configuration; uniqueness by node
// id (the authoritative identity) is enforced at acquire time, not here.
type Database struct {
	DSN string `msgpack:"dsn" yaml:"dsn"`
}

// Table names a captured table and the columns that participate in
// change detection.
type Table struct {
	Schema      string   `msgpack:"schema" yaml:"schema"`
	Name        string   `msgpack:"name" yaml:"name"`
	PrimaryKeys []string `msgpack:"primary_keys" yaml:"primary_keys"`
	Columns     []string `msgpack:"columns" yaml:"columns"`
}

// QualifiedName returns "schema.name".
func (t Table) QualifiedName() string {
	return fmt.Sprintf("%s.%s", t.Schema, t.Name)
}

// UpdateColumns returns unique(primary_keys ⊕ columns), preserving the
// first-seen order — the exact column list fed to the trigger's
// "UPDATE OF" clause (P4).
func (t Table) UpdateColumns() []string {
	return dedupPreservingOrder(t.PrimaryKeys, t.Columns)
}

func dedupPreservingOrder(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, lists := range [2][]string{a, b} {
		for _, col := range lists {
			if _, ok := seen[col]; ok {
				continue
			}
			seen[col] = struct{}{}
			out = append(out, col)
		}
	}
	return out
}

// ReplicationSetConfiguration is stored at <root>/sets/<name> in the
// coordination store. It accepts forward-compatible additions on decode
// (Lax mode) because, unlike the cluster root, a set configuration is
// allowed to carry fields newer clients understand and older ones don't
// need to reject.
type ReplicationSetConfiguration struct {
	Databases []Database `msgpack:"databases" yaml:"databases"`
	Tables    []Table    `msgpack:"tables" yaml:"tables"`
}

// Version returns version(cfg) = md5(canonical_encoded_bytes(cfg)) — the
// opaque fingerprint carried by installed triggers (P3).
func Version(cfg any) (string, error) {
	return codec.Version(cfg)
}

// ValidateSetConfiguration enforces the structural pre-conditions the
// administration orchestrator requires before acquiring any database:
// non-empty DSNs, at least one primary key per table, non-empty
// schema/table names.
//
// Duplicate DSNs are deliberately not checked here: two DSN strings (or
// the same one twice) resolving to the same node is a fact only the
// acquirer can establish, by actually connecting and comparing node ids
// (I1). Rejecting here on string equality alone would also mask the
// acquirer's DuplicateNode for the common case of two distinct DSNs
// addressing one physical node.
func ValidateSetConfiguration(cfg ReplicationSetConfiguration) error {
	for _, db := range cfg.Databases {
		if db.DSN == "" {
			return fmt.Errorf("replication set configuration: empty dsn")
		}
	}

	if len(cfg.Tables) == 0 {
		return fmt.Errorf("replication set configuration: no tables declared")
	}

	for _, t := range cfg.Tables {
		if t.Schema == "" || t.Name == "" {
			return fmt.Errorf("replication set configuration: table missing schema or name")
		}
		if len(t.PrimaryKeys) == 0 {
			return fmt.Errorf("replication set configuration: table %s has no primary keys", t.QualifiedName())
		}
	}

	return nil
}
