// Package stream implements the published event stream's wire message
// taxonomy (§6), the stateful validators built on top of it (§4.I), the
// batched-iterator adapter (§4.J), and the publisher (§4.K).
package stream

import "github.com/google/uuid"

// Header is carried by every message: the publisher identity that
// emitted it and that publisher's strictly increasing sequence number.
type Header struct {
	Publisher uuid.UUID
	Sequence  uint64
}

// BatchIdentifier names one batch: the node it was reserved from plus a
// monotonically increasing id scoped to that node.
type BatchIdentifier struct {
	ID   uint64
	Node uuid.UUID
}

// OperationKind tags which variant of BatchOperation a Message carries.
type OperationKind int

const (
	OpBegin OperationKind = iota
	OpMutation
	OpCommit
	OpRollback
)

func (k OperationKind) String() string {
	switch k {
	case OpBegin:
		return "begin"
	case OpMutation:
		return "mutation"
	case OpCommit:
		return "commit"
	case OpRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// Mutation carries one row-level change event, as synthesized by the
// audit trigger (out of scope for this repository — messages arrive
// already encoded in this shape from the queue extension).
type Mutation struct {
	Schema     string
	Table      string
	PKeyValues map[string]any
	NewRow     map[string]any
	OldRow     map[string]any
	Timestamp  int64
	TxID       uint64
}

// Message is one envelope on the published stream: a header plus
// exactly one operation, identified by Kind.
type Message struct {
	Header   Header
	Kind     OperationKind
	Batch    BatchIdentifier // set by Publisher on every operation of a batch
	Mutation Mutation        // set on OpMutation
}
