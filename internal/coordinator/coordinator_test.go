package coordinator

import (
	"context"
	"testing"
	"time"

	"shoveld/internal/shovelerrors"
)

func TestCommandKindString(t *testing.T) {
	if got := cmdSubscribe.kindString(); got != "subscribe" {
		t.Errorf("cmdSubscribe.kindString() = %q, want %q", got, "subscribe")
	}
	if got := cmdUnsubscribe.kindString(); got != "unsubscribe" {
		t.Errorf("cmdUnsubscribe.kindString() = %q, want %q", got, "unsubscribe")
	}
}

func TestSendReturnsContextErrorWhenNoRunLoop(t *testing.T) {
	co := New("postgres://example", nil, nil, nil, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := co.Subscribe(ctx, "orders", SubscribeConfig{ConsumerGroup: "g", Identifier: "id"})
	if err != context.DeadlineExceeded {
		t.Errorf("expected context.DeadlineExceeded with no Run loop draining commands, got %v", err)
	}
}

func TestSendReturnsCancelledAfterCoordinatorStopped(t *testing.T) {
	co := New("postgres://example", nil, nil, nil, nil, nil, nil)
	close(co.done)

	err := co.Subscribe(context.Background(), "orders", SubscribeConfig{})
	var cancelled *shovelerrors.Cancelled
	if err == nil {
		t.Fatal("expected an error after the coordinator's done channel is closed")
	}
	if !asCancelled(err, &cancelled) {
		t.Fatalf("expected a *shovelerrors.Cancelled, got %T: %v", err, err)
	}
	if cancelled.Command != "subscribe" {
		t.Errorf("expected Cancelled.Command = subscribe, got %q", cancelled.Command)
	}
}

func asCancelled(err error, target **shovelerrors.Cancelled) bool {
	c, ok := err.(*shovelerrors.Cancelled)
	if !ok {
		return false
	}
	*target = c
	return true
}
