package stream

import (
	"errors"
	"log/slog"

	"shoveld/internal/shovelerrors"
)

// DownstreamSink receives one fully validated, grouped batch at a time.
// It stands in for the external replication relay transport, which is
// out of scope for this repository (§1) — Pipeline only needs something
// that accepts a batch's mutations once they have passed validation.
type DownstreamSink interface {
	PublishBatch(id BatchIdentifier, mutations []Mutation) error
}

// Pipeline is a Sink that runs every message it receives through the
// transaction validator (§4.I) before regrouping committed batches with
// GroupBatches (§4.J) and forwarding them to out. A rolled-back batch is
// validated like any other but never reaches out — there is nothing to
// publish once a transaction has been cancelled.
//
// Pipeline is not safe for concurrent use: it is meant to be driven by
// the single goroutine that owns the Publisher feeding it.
type Pipeline struct {
	machine *Machine
	state   State
	buf     []Message
	out     DownstreamSink
}

// NewPipeline returns a Pipeline that validates with
// NewTransactionValidator and forwards validated batches to out.
func NewPipeline(out DownstreamSink) *Pipeline {
	return &Pipeline{machine: NewTransactionValidator(), state: NoTransaction, out: out}
}

// Publish implements Sink. It validates msg against the current
// transaction state and, on Commit or Rollback, regroups the buffered
// batch and forwards it downstream.
func (p *Pipeline) Publish(msg Message) error {
	next, err := p.machine.Step(p.state, msg)
	if err != nil {
		return err
	}
	p.state = next
	p.buf = append(p.buf, msg)

	switch msg.Kind {
	case OpCommit, OpRollback:
		return p.flush()
	default:
		return nil
	}
}

// flush groups the buffered messages into (at most one, in practice)
// completed batch and forwards its mutations downstream, unless the
// batch ended in rollback.
func (p *Pipeline) flush() error {
	batches := GroupBatches(p.buf)
	p.buf = p.buf[:0]

	for _, b := range batches {
		mutations, rolledBack, err := drainMutations(b.Mutation)
		if err != nil {
			return err
		}
		if rolledBack {
			continue
		}
		if err := p.out.PublishBatch(b.ID, mutations); err != nil {
			return err
		}
	}
	return nil
}

// drainMutations reads every mutation out of it, distinguishing a normal
// commit (rolledBack=false) from a cancelled transaction (rolledBack=
// true, err=nil) from a genuine iteration failure (err != nil, e.g. an
// unterminated batch group).
func drainMutations(it *MutationIterator) (mutations []Mutation, rolledBack bool, err error) {
	for {
		m, ok, iterErr := it.Next()
		if iterErr != nil {
			var cancelled *shovelerrors.TransactionCancelled
			if errors.As(iterErr, &cancelled) {
				return nil, true, nil
			}
			return nil, false, iterErr
		}
		if !ok {
			return mutations, false, nil
		}
		mutations = append(mutations, m)
	}
}

// LogSink is the default DownstreamSink: it logs each validated batch at
// info level rather than forwarding it anywhere. The real relay
// transport (shipping batches to consumers outside this cluster) is out
// of scope for this repository (§1); LogSink exists so the publish path
// has somewhere concrete to terminate.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink returns a LogSink writing through log. A nil log falls back
// to slog.Default().
func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

// PublishBatch implements DownstreamSink.
func (s *LogSink) PublishBatch(id BatchIdentifier, mutations []Mutation) error {
	s.log.Info("published batch", "node", id.Node, "batch_id", id.ID, "mutations", len(mutations))
	return nil
}
