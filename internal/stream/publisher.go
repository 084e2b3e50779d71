package stream

import (
	"github.com/google/uuid"
)

// Sink receives each message a Publisher emits, in order. Implementations
// forward to the actual downstream relay transport, which is out of
// scope for this repository (§1) — Publisher only needs something that
// accepts a Message.
type Sink interface {
	Publish(Message) error
}

// Publisher emits a sequence-numbered, header-wrapped message stream
// with scoped begin/commit/rollback framing (§4.K). Its identity is
// stable across batches for the Publisher's lifetime and changes only if
// the process restarts — exactly the event the stream validators detect
// via a sequence reset to zero.
type Publisher struct {
	id       uuid.UUID
	sink     Sink
	sequence uint64
}

// NewPublisher returns a publisher with a fresh identity.
func NewPublisher(sink Sink) *Publisher {
	return &Publisher{id: uuid.New(), sink: sink}
}

// ID returns this publisher's stable identity.
func (p *Publisher) ID() uuid.UUID { return p.id }

// BatchHandle is the scoped block §4.K describes: Publish emits a
// Mutation tagged with the batch identifier, and the batch is closed by
// calling Commit or Rollback exactly once.
type BatchHandle struct {
	p       *Publisher
	batchID BatchIdentifier
	closed  bool
}

// Batch emits Begin(batchID) and returns a handle for publishing
// mutations within it. The caller must call Commit or Rollback on the
// returned handle exactly once.
func (p *Publisher) Batch(node uuid.UUID, id uint64) (*BatchHandle, error) {
	batchID := BatchIdentifier{ID: id, Node: node}
	if err := p.emit(Message{Kind: OpBegin, Batch: batchID}); err != nil {
		return nil, err
	}
	return &BatchHandle{p: p, batchID: batchID}, nil
}

// Publish emits one mutation within this batch.
func (h *BatchHandle) Publish(m Mutation) error {
	return h.p.emit(Message{Kind: OpMutation, Batch: h.batchID, Mutation: m})
}

// Commit emits a Commit and closes the batch. Safe to call at most once.
func (h *BatchHandle) Commit() error {
	if h.closed {
		return nil
	}
	h.closed = true
	return h.p.emit(Message{Kind: OpCommit, Batch: h.batchID})
}

// Rollback emits a Rollback and closes the batch, swallowing nothing —
// callers still propagate whatever error caused the rollback. Safe to
// call at most once.
func (h *BatchHandle) Rollback() error {
	if h.closed {
		return nil
	}
	h.closed = true
	return h.p.emit(Message{Kind: OpRollback, Batch: h.batchID})
}

func (p *Publisher) emit(msg Message) error {
	msg.Header = Header{Publisher: p.id, Sequence: p.sequence}
	p.sequence++
	return p.sink.Publish(msg)
}
