package coordstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"shoveld/internal/shovelerrors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "coordstore.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTxnCreateRejectsDuplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.NewTxn().Create("/shovel/c", []byte("v1")).Commit(ctx); err != nil {
		t.Fatalf("first create: %v", err)
	}

	err := s.NewTxn().Create("/shovel/c", []byte("v2")).Commit(ctx)
	var conflict *shovelerrors.CoordinationStoreConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected CoordinationStoreConflict, got %v", err)
	}
}

func TestTxnSetIfHonorsExpectedRevision(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.NewTxn().Create("/shovel/sets/orders", []byte("v1")).Commit(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := s.Get(ctx, "/shovel/sets/orders")
	if err != nil || !n.Found {
		t.Fatalf("get: %v %+v", err, n)
	}
	if n.Revision != 1 {
		t.Fatalf("expected revision 1, got %d", n.Revision)
	}

	if err := s.NewTxn().SetIf("/shovel/sets/orders", []byte("v2"), 1).Commit(ctx); err != nil {
		t.Fatalf("setif at correct revision: %v", err)
	}

	err = s.NewTxn().SetIf("/shovel/sets/orders", []byte("v3"), 1).Commit(ctx)
	var conflict *shovelerrors.CoordinationStoreConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict on stale revision, got %v", err)
	}
}

func TestLeaseIsExclusive(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	lease, err := AcquireLease(ctx, s, "/shovel/leases/prod/orders", "consumer-a", time.Minute, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire lease: %v", err)
	}

	held, err := lease.StillHeld(context.Background())
	if err != nil || !held {
		t.Fatalf("expected lease still held, got %v %v", held, err)
	}

	_, err = AcquireLease(ctx, s, "/shovel/leases/prod/orders", "consumer-b", time.Minute, 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected second acquisition to time out while first holder is alive")
	}

	if err := lease.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	lease2, err := AcquireLease(ctx2, s, "/shovel/leases/prod/orders", "consumer-b", time.Minute, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("expected second holder to acquire after release: %v", err)
	}
	if lease2.holder != "consumer-b" {
		t.Fatalf("expected holder consumer-b, got %s", lease2.holder)
	}
}
