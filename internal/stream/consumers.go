package stream

import (
	"fmt"

	"github.com/google/uuid"

	"shoveld/internal/shovelerrors"
)

// SequenceValidator is the "lighter sibling" of the transaction
// validator (§4.I): it tracks, per publisher, the last sequence number
// observed and requires every subsequent message from that publisher to
// advance by exactly one, starting from zero. A publisher observed for
// the first time (or restarting with sequence 0 after previously being
// seen — the "publisher epoch" reset the transaction validator also
// detects) resets its own counter.
type SequenceValidator struct {
	last map[uuid.UUID]uint64
	seen map[uuid.UUID]bool
}

// NewSequenceValidator returns a validator with no publishers observed yet.
func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{last: make(map[uuid.UUID]uint64), seen: make(map[uuid.UUID]bool)}
}

// Validate checks msg's header sequence against the publisher's last
// observed one, updating internal state on success.
func (v *SequenceValidator) Validate(msg Message) error {
	pub := msg.Header.Publisher
	seq := msg.Header.Sequence

	if !v.seen[pub] {
		if seq != 0 {
			return &shovelerrors.InvalidEvent{Reason: fmt.Sprintf("publisher %s started at sequence %d, expected 0", pub, seq)}
		}
		v.seen[pub] = true
		v.last[pub] = 0
		return nil
	}

	if seq == 0 {
		// A restart: the publisher process crashed and came back with a
		// fresh sequence counter. This is a new epoch, not a contiguity
		// violation, so it resets rather than fails.
		v.last[pub] = 0
		return nil
	}

	want := v.last[pub] + 1
	if seq != want {
		return &shovelerrors.InvalidEvent{Reason: fmt.Sprintf("publisher %s sequence %d is not contiguous with last %d", pub, seq, v.last[pub])}
	}
	v.last[pub] = seq
	return nil
}
