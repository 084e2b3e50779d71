package stream

import (
	"fmt"

	"github.com/google/uuid"

	"shoveld/internal/shovelerrors"
)

// txnStateKind distinguishes the four transaction-validator states.
type txnStateKind int

const (
	txnNone txnStateKind = iota
	txnInTransaction
	txnCommitted
	txnRolledBack
)

// TxnState is the transaction validator's state: NoTransaction,
// InTransaction(publisher, batch_id), Committed(publisher, batch_id), or
// RolledBack(publisher, batch_id).
type TxnState struct {
	Kind      txnStateKind
	Publisher uuid.UUID
	BatchID   uint64
}

// StateClass groups every state by kind: transitions only ever depend on
// which of the four states is current, not on its publisher/batch_id
// (those are read by the guards themselves).
func (s TxnState) StateClass() string {
	switch s.Kind {
	case txnInTransaction:
		return "in_transaction"
	case txnCommitted:
		return "committed"
	case txnRolledBack:
		return "rolled_back"
	default:
		return "no_transaction"
	}
}

// NoTransaction is the transaction validator's start state.
var NoTransaction = TxnState{Kind: txnNone}

// NewTransactionValidator builds the Machine described in §4.I: a table
// covering NoTransaction / InTransaction / Committed / RolledBack, guarded
// by same-batch, same-publisher, different-publisher, and batch-id
// monotonicity checks.
func NewTransactionValidator() *Machine {
	beginTransition := func(current State, msg Message) (State, error) {
		prev := current.(TxnState)
		switch prev.Kind {
		case txnNone:
			// first transaction ever observed, nothing to guard against
		case txnCommitted:
			if prev.Publisher == msg.Header.Publisher && msg.Batch.ID <= prev.BatchID {
				return nil, &shovelerrors.InvalidBatch{
					InvalidEvent: shovelerrors.InvalidEvent{Reason: "batch id must advance after commit on the same node"},
					Expected:     prev.BatchID + 1, Actual: msg.Batch.ID,
				}
			}
		case txnRolledBack:
			if prev.Publisher == msg.Header.Publisher && msg.Batch.ID != prev.BatchID {
				return nil, &shovelerrors.InvalidBatch{
					InvalidEvent: shovelerrors.InvalidEvent{Reason: "batch id must not advance after rollback on the same node"},
					Expected:     prev.BatchID, Actual: msg.Batch.ID,
				}
			}
		default:
			return nil, &shovelerrors.InvalidEvent{Reason: fmt.Sprintf("begin received while in state class %q", prev.StateClass())}
		}
		return TxnState{Kind: txnInTransaction, Publisher: msg.Header.Publisher, BatchID: msg.Batch.ID}, nil
	}

	requireSameBatchAndPublisher := func(current State, msg Message) error {
		cur := current.(TxnState)
		if cur.Publisher != msg.Header.Publisher {
			return &shovelerrors.InvalidPublisher{
				InvalidEvent: shovelerrors.InvalidEvent{Reason: "operation from unexpected publisher mid-transaction"},
				Expected:     cur.Publisher.String(), Actual: msg.Header.Publisher.String(),
			}
		}
		if cur.BatchID != msg.Batch.ID {
			return &shovelerrors.InvalidBatch{
				InvalidEvent: shovelerrors.InvalidEvent{Reason: "operation from unexpected batch mid-transaction"},
				Expected:     cur.BatchID, Actual: msg.Batch.ID,
			}
		}
		return nil
	}

	mutationTransition := func(current State, msg Message) (State, error) {
		if err := requireSameBatchAndPublisher(current, msg); err != nil {
			return nil, err
		}
		return current, nil
	}

	commitTransition := func(current State, msg Message) (State, error) {
		cur := current.(TxnState)
		if cur.Publisher != msg.Header.Publisher {
			return nil, &shovelerrors.InvalidPublisher{
				InvalidEvent: shovelerrors.InvalidEvent{Reason: "commit from unexpected publisher"},
				Expected:     cur.Publisher.String(), Actual: msg.Header.Publisher.String(),
			}
		}
		if cur.BatchID != msg.Batch.ID {
			return nil, &shovelerrors.InvalidBatch{
				InvalidEvent: shovelerrors.InvalidEvent{Reason: "commit from unexpected batch"},
				Expected:     cur.BatchID, Actual: msg.Batch.ID,
			}
		}
		return TxnState{Kind: txnCommitted, Publisher: cur.Publisher, BatchID: cur.BatchID}, nil
	}

	rollbackTransition := func(current State, msg Message) (State, error) {
		cur := current.(TxnState)
		if cur.Publisher != msg.Header.Publisher {
			return nil, &shovelerrors.InvalidPublisher{
				InvalidEvent: shovelerrors.InvalidEvent{Reason: "rollback from unexpected publisher"},
				Expected:     cur.Publisher.String(), Actual: msg.Header.Publisher.String(),
			}
		}
		if cur.BatchID != msg.Batch.ID {
			return nil, &shovelerrors.InvalidBatch{
				InvalidEvent: shovelerrors.InvalidEvent{Reason: "rollback from unexpected batch"},
				Expected:     cur.BatchID, Actual: msg.Batch.ID,
			}
		}
		return TxnState{Kind: txnRolledBack, Publisher: cur.Publisher, BatchID: cur.BatchID}, nil
	}

	return NewMachine(NoTransaction, map[string]map[OperationKind]Transition{
		"no_transaction": {OpBegin: beginTransition},
		"in_transaction": {
			OpMutation: mutationTransition,
			OpCommit:   commitTransition,
			OpRollback: rollbackTransition,
		},
		"committed":    {OpBegin: beginTransition},
		"rolled_back":  {OpBegin: beginTransition},
	})
}
