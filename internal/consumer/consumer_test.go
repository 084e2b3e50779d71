package consumer

import (
	"testing"
	"time"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateStarting:       "starting",
		StateAcquiringLease: "acquiring_lease",
		StateRegistering:    "registering",
		StateRunning:        "running",
		StateDraining:       "draining",
		StateStopped:        "stopped",
		StateFailed:         "failed",
		State(99):           "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New(Config{Database: "db", Set: "orders", ConsumerGroup: "g", Identifier: "id"}, nil, nil, nil, nil, nil)

	if c.cfg.LeaseTTL != 30*time.Second {
		t.Errorf("expected default lease TTL of 30s, got %s", c.cfg.LeaseTTL)
	}
	if c.cfg.LeasePollEvery != 50*time.Millisecond {
		t.Errorf("expected default lease poll interval of 50ms, got %s", c.cfg.LeasePollEvery)
	}
	if c.log == nil {
		t.Error("expected New to fall back to slog.Default() when log is nil")
	}
	if c.State() != StateStarting {
		t.Errorf("expected initial state StateStarting, got %s", c.State())
	}
}

func TestNewPreservesExplicitDurations(t *testing.T) {
	c := New(Config{
		Database:       "db",
		Set:            "orders",
		ConsumerGroup:  "g",
		Identifier:     "id",
		LeaseTTL:       time.Minute,
		LeasePollEvery: time.Second,
	}, nil, nil, nil, nil, nil)

	if c.cfg.LeaseTTL != time.Minute {
		t.Errorf("expected lease TTL of 1m to be preserved, got %s", c.cfg.LeaseTTL)
	}
	if c.cfg.LeasePollEvery != time.Second {
		t.Errorf("expected lease poll interval of 1s to be preserved, got %s", c.cfg.LeasePollEvery)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	c := New(Config{Database: "db", Set: "orders", ConsumerGroup: "g", Identifier: "id"}, nil, nil, nil, nil, nil)

	done := make(chan struct{})
	go func() {
		c.Stop()
		c.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return; double-close likely panicked")
	}

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}

func TestErrIsNilBeforeFailure(t *testing.T) {
	c := New(Config{Database: "db", Set: "orders", ConsumerGroup: "g", Identifier: "id"}, nil, nil, nil, nil, nil)
	if err := c.Err(); err != nil {
		t.Errorf("expected nil error before any failure, got %v", err)
	}
}
