package stream

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"shoveld/internal/shovelerrors"
)

type recordingSink struct {
	msgs []Message
}

func (s *recordingSink) Publish(m Message) error {
	s.msgs = append(s.msgs, m)
	return nil
}

func TestPublisherSequenceIsContiguousFromZero(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisher(sink)
	node := uuid.New()

	b, err := p.Batch(node, 1)
	if err != nil {
		t.Fatalf("begin batch: %v", err)
	}
	if err := b.Publish(Mutation{Table: "orders"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	for i, m := range sink.msgs {
		if m.Header.Sequence != uint64(i) {
			t.Fatalf("message %d has sequence %d, want %d", i, m.Header.Sequence, i)
		}
		if m.Header.Publisher != p.ID() {
			t.Fatalf("message %d has publisher %s, want %s", i, m.Header.Publisher, p.ID())
		}
	}
}

func TestPublisherEveryBeginFollowedByExactlyOneTerminal(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisher(sink)
	node := uuid.New()

	b, _ := p.Batch(node, 1)
	_ = b.Commit()
	_ = b.Commit() // safe to call twice, second is a no-op

	terminals := 0
	begins := 0
	for _, m := range sink.msgs {
		switch m.Kind {
		case OpBegin:
			begins++
		case OpCommit, OpRollback:
			terminals++
		}
	}
	if begins != 1 || terminals != 1 {
		t.Fatalf("expected 1 begin and 1 terminal, got %d begins, %d terminals", begins, terminals)
	}
}

func TestTransactionValidatorAcceptsBasicLifecycle(t *testing.T) {
	pub := uuid.New()
	node := uuid.New()
	msgs := []Message{
		{Header: Header{Publisher: pub}, Kind: OpBegin, Batch: BatchIdentifier{ID: 1, Node: node}},
		{Header: Header{Publisher: pub}, Kind: OpMutation, Batch: BatchIdentifier{ID: 1, Node: node}},
		{Header: Header{Publisher: pub}, Kind: OpCommit, Batch: BatchIdentifier{ID: 1, Node: node}},
	}

	m := NewTransactionValidator()
	if _, err := m.Trace(msgs); err != nil {
		t.Fatalf("expected valid stream to trace cleanly, got: %v", err)
	}
}

func TestTransactionValidatorRejectsBatchIDReuseBySamePublisher(t *testing.T) {
	pub := uuid.New()
	node := uuid.New()
	msgs := []Message{
		{Header: Header{Publisher: pub}, Kind: OpBegin, Batch: BatchIdentifier{ID: 1, Node: node}},
		{Header: Header{Publisher: pub}, Kind: OpCommit, Batch: BatchIdentifier{ID: 1, Node: node}},
		{Header: Header{Publisher: pub}, Kind: OpBegin, Batch: BatchIdentifier{ID: 1, Node: node}},
	}

	m := NewTransactionValidator()
	if _, err := m.Trace(msgs); err == nil {
		t.Fatal("expected batch id reuse by the same publisher to be rejected")
	} else {
		var invalid *shovelerrors.InvalidBatch
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidBatch, got %T: %v", err, err)
		}
	}
}

func TestTransactionValidatorAcceptsDifferentPublisherReusingBatchID(t *testing.T) {
	pubA := uuid.New()
	pubB := uuid.New()
	node := uuid.New()
	msgs := []Message{
		{Header: Header{Publisher: pubA}, Kind: OpBegin, Batch: BatchIdentifier{ID: 1, Node: node}},
		{Header: Header{Publisher: pubA}, Kind: OpCommit, Batch: BatchIdentifier{ID: 1, Node: node}},
		{Header: Header{Publisher: pubB}, Kind: OpBegin, Batch: BatchIdentifier{ID: 1, Node: node}},
	}

	m := NewTransactionValidator()
	if _, err := m.Trace(msgs); err != nil {
		t.Fatalf("expected different-publisher reuse to validate, got: %v", err)
	}
}

func TestGroupBatchesFidelity(t *testing.T) {
	pub := uuid.New()
	node := uuid.New()
	m1 := Mutation{Table: "orders"}
	m2 := Mutation{Table: "items"}

	msgs := []Message{
		{Header: Header{Publisher: pub}, Kind: OpBegin, Batch: BatchIdentifier{ID: 1, Node: node}},
		{Header: Header{Publisher: pub}, Kind: OpMutation, Mutation: m1},
		{Header: Header{Publisher: pub}, Kind: OpMutation, Mutation: m2},
		{Header: Header{Publisher: pub}, Kind: OpCommit},
	}

	batches := GroupBatches(msgs)
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}

	var seen []Mutation
	for {
		mut, ok, err := batches[0].Mutation.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			break
		}
		seen = append(seen, mut)
	}
	if len(seen) != 2 || seen[0].Table != m1.Table || seen[1].Table != m2.Table {
		t.Fatalf("expected mutations %v, %v in order, got %v", m1, m2, seen)
	}
}

func TestGroupBatchesAbortsOnUnterminatedStream(t *testing.T) {
	pub := uuid.New()
	node := uuid.New()
	msgs := []Message{
		{Header: Header{Publisher: pub}, Kind: OpBegin, Batch: BatchIdentifier{ID: 1, Node: node}},
		{Header: Header{Publisher: pub}, Kind: OpMutation, Mutation: Mutation{Table: "orders"}},
	}

	batches := GroupBatches(msgs)
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}

	_, _, err := batches[0].Mutation.Next() // the mutation
	if err != nil {
		t.Fatalf("unexpected error on first mutation: %v", err)
	}
	_, ok, err := batches[0].Mutation.Next() // end of stream, no terminal
	if ok {
		t.Fatal("expected no further mutation")
	}
	var aborted *shovelerrors.TransactionAborted
	if !errors.As(err, &aborted) {
		t.Fatalf("expected TransactionAborted, got %T: %v", err, err)
	}
}

func TestGroupBatchesRollbackYieldsTransactionCancelled(t *testing.T) {
	pub := uuid.New()
	node := uuid.New()
	msgs := []Message{
		{Header: Header{Publisher: pub}, Kind: OpBegin, Batch: BatchIdentifier{ID: 1, Node: node}},
		{Header: Header{Publisher: pub}, Kind: OpRollback},
	}

	batches := GroupBatches(msgs)
	_, _, err := batches[0].Mutation.Next()
	var cancelled *shovelerrors.TransactionCancelled
	if !errors.As(err, &cancelled) {
		t.Fatalf("expected TransactionCancelled, got %T: %v", err, err)
	}
}

func TestSequenceValidatorRequiresContiguousFromZero(t *testing.T) {
	pub := uuid.New()
	v := NewSequenceValidator()

	if err := v.Validate(Message{Header: Header{Publisher: pub, Sequence: 0}}); err != nil {
		t.Fatalf("expected sequence 0 to be accepted, got: %v", err)
	}
	if err := v.Validate(Message{Header: Header{Publisher: pub, Sequence: 1}}); err != nil {
		t.Fatalf("expected sequence 1 to be accepted, got: %v", err)
	}
	if err := v.Validate(Message{Header: Header{Publisher: pub, Sequence: 3}}); err == nil {
		t.Fatal("expected a skipped sequence number to be rejected")
	}
}
