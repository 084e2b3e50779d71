package stream

import "shoveld/internal/shovelerrors"

// Batch is one yielded group from GroupBatches: the batch identifier and
// an iterator over its mutation operations.
type Batch struct {
	ID       BatchIdentifier
	Mutation *MutationIterator
}

// MutationIterator lazily emits the mutation operations of one batch
// group. Next returns (mutation, true, nil) for each mutation seen, then
// (Mutation{}, false, nil) on a normal Commit, or a non-nil error on
// Rollback (TransactionCancelled) or an unterminated group
// (TransactionAborted).
type MutationIterator struct {
	batchID BatchIdentifier
	msgs    []Message
	pos     int
	done    bool
	err     error
}

// Next advances the iterator by one mutation.
func (it *MutationIterator) Next() (Mutation, bool, error) {
	if it.done {
		return Mutation{}, false, it.err
	}
	for it.pos < len(it.msgs) {
		msg := it.msgs[it.pos]
		it.pos++
		switch msg.Kind {
		case OpMutation:
			return msg.Mutation, true, nil
		case OpCommit:
			it.done = true
			return Mutation{}, false, nil
		case OpRollback:
			it.done = true
			it.err = &shovelerrors.TransactionCancelled{BatchID: it.batchID.ID}
			return Mutation{}, false, it.err
		}
	}
	it.done = true
	it.err = &shovelerrors.TransactionAborted{BatchID: it.batchID.ID}
	return Mutation{}, false, it.err
}

// GroupBatches implements §4.J: it groups a validated message stream by
// (publisher, batch_id) and returns one Batch per Begin observed, in
// order of appearance. It assumes msgs has already passed a transaction
// validator — it does not re-validate guard conditions, only regroups.
func GroupBatches(msgs []Message) []Batch {
	var batches []Batch
	var current *MutationIterator

	for _, msg := range msgs {
		if msg.Kind == OpBegin {
			current = &MutationIterator{batchID: msg.Batch}
			batches = append(batches, Batch{ID: msg.Batch, Mutation: current})
			continue
		}
		if current == nil {
			continue
		}
		current.msgs = append(current.msgs, msg)
	}
	return batches
}
