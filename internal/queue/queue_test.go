package queue

import "testing"

func TestNewReturnsDistinctStatelessClients(t *testing.T) {
	a := New()
	b := New()
	if a == nil || b == nil {
		t.Fatal("New returned nil")
	}
	if a == b {
		t.Error("expected New to return a fresh Client each call")
	}
}

func TestBatchInfoZeroValueIsNotFound(t *testing.T) {
	var info BatchInfo
	if info.Found {
		t.Error("zero-value BatchInfo should report Found = false")
	}
	if info.ID != 0 {
		t.Errorf("zero-value BatchInfo should have ID 0, got %d", info.ID)
	}
}
