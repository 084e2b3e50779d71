package model

import "testing"

func TestTableUpdateColumnsDedupsOrderPreserving(t *testing.T) {
	tests := []struct {
		name    string
		pkeys   []string
		columns []string
		want    []string
	}{
		{"no overlap", []string{"id"}, []string{"total"}, []string{"id", "total"}},
		{"pkey repeated in columns", []string{"id"}, []string{"id", "total"}, []string{"id", "total"}},
		{"composite key", []string{"a", "b"}, []string{"b", "c", "a"}, []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := Table{PrimaryKeys: tt.pkeys, Columns: tt.columns}
			got := tbl.UpdateColumns()
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestVersionStableForEqualConfigurations(t *testing.T) {
	a := ReplicationSetConfiguration{
		Databases: []Database{{DSN: "postgres://d1"}},
		Tables:    []Table{{Schema: "public", Name: "orders", PrimaryKeys: []string{"id"}, Columns: []string{"total"}}},
	}
	b := a

	va, err := Version(a)
	if err != nil {
		t.Fatalf("version(a): %v", err)
	}
	vb, err := Version(b)
	if err != nil {
		t.Fatalf("version(b): %v", err)
	}
	if va != vb {
		t.Fatalf("expected equal fingerprints, got %s != %s", va, vb)
	}

	c := a
	c.Tables[0].Columns = []string{"total", "status"}
	vc, err := Version(c)
	if err != nil {
		t.Fatalf("version(c): %v", err)
	}
	if vc == va {
		t.Fatalf("expected different fingerprint after changing columns")
	}
}

// Duplicate DSNs are not rejected here: whether two DSNs resolve to the
// same node is the acquirer's call to make (it raises DuplicateNode after
// actually connecting), not something this structural check can decide
// from string equality alone.
func TestValidateSetConfigurationAllowsRepeatedDSN(t *testing.T) {
	cfg := ReplicationSetConfiguration{
		Databases: []Database{{DSN: "d1"}, {DSN: "d1"}},
		Tables:    []Table{{Schema: "public", Name: "orders", PrimaryKeys: []string{"id"}}},
	}
	if err := ValidateSetConfiguration(cfg); err != nil {
		t.Fatalf("unexpected error for repeated dsn: %v", err)
	}
}

func TestValidateSetConfigurationRejectsEmptyDSN(t *testing.T) {
	cfg := ReplicationSetConfiguration{
		Databases: []Database{{DSN: ""}},
		Tables:    []Table{{Schema: "public", Name: "orders", PrimaryKeys: []string{"id"}}},
	}
	if err := ValidateSetConfiguration(cfg); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestValidateSetConfigurationRequiresPrimaryKey(t *testing.T) {
	cfg := ReplicationSetConfiguration{
		Databases: []Database{{DSN: "d1"}},
		Tables:    []Table{{Schema: "public", Name: "orders"}},
	}
	if err := ValidateSetConfiguration(cfg); err == nil {
		t.Fatal("expected error for missing primary key")
	}
}
