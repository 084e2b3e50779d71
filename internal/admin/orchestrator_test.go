package admin

import (
	"testing"

	"shoveld/internal/model"
)

func TestVersionLessComparesDottedNumericRuns(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"1.0.0", "1.0.1", true},
		{"1.2.0", "1.10.0", true},
		{"1.10.0", "1.2.0", false},
		{"2.0.0", "1.9.9", false},
		{"1.0.0", "1.0.0", false},
	}
	for _, c := range cases {
		if got := versionLess(c.a, c.b); got != c.want {
			t.Errorf("versionLess(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestTablesRemovedByQualifiedName(t *testing.T) {
	old := []model.Table{
		{Schema: "public", Name: "orders"},
		{Schema: "public", Name: "items"},
	}
	next := []model.Table{
		{Schema: "public", Name: "orders"},
	}

	removed := tablesRemoved(old, next)
	if len(removed) != 1 || removed[0].QualifiedName() != "public.items" {
		t.Fatalf("expected only public.items removed, got %+v", removed)
	}
}

func TestDedupDSNsPreservesFirstOccurrenceOrder(t *testing.T) {
	in := []string{"a", "b", "a", "c", "b"}
	out := dedupDSNs(in)
	want := []string{"a", "b", "c"}
	if len(out) != len(want) {
		t.Fatalf("expected %v, got %v", want, out)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, out)
		}
	}
}

func TestDsnsOfAndSetOf(t *testing.T) {
	dbs := []model.Database{{DSN: "d1"}, {DSN: "d2"}}
	dsns := dsnsOf(dbs)
	set := setOf(dsns)
	if _, ok := set["d1"]; !ok {
		t.Fatal("expected d1 in set")
	}
	if _, ok := set["d3"]; ok {
		t.Fatal("did not expect d3 in set")
	}
}
