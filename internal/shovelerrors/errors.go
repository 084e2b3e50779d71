// Package shovelerrors defines the typed error taxonomy surfaced by the
// administration orchestrator, the consumer/coordinator actors, and the
// stream validators. Every error here is distinguishable by kind via
// errors.As, independent of the message text wrapped around it with
// fmt.Errorf("%w", ...) as it propagates up the call stack.
package shovelerrors

import "fmt"

// ConnectionFailed indicates a DSN could not be connected to.
type ConnectionFailed struct {
	DSN   string
	Cause error
}

func (e *ConnectionFailed) Error() string {
	return fmt.Sprintf("connection failed for %s: %v", RedactDSN(e.DSN), e.Cause)
}

func (e *ConnectionFailed) Unwrap() error { return e.Cause }

// NotConfigured indicates a node has no configuration table and the caller
// did not request implicit setup (configure=false).
type NotConfigured struct {
	DSN string
}

func (e *NotConfigured) Error() string {
	return fmt.Sprintf("node at %s is not configured", RedactDSN(e.DSN))
}

// NotConfigurable indicates a bootstrap step failed and no setup was requested.
type NotConfigurable struct {
	DSN   string
	Cause error
}

func (e *NotConfigurable) Error() string {
	return fmt.Sprintf("node at %s is not configurable: %v", RedactDSN(e.DSN), e.Cause)
}

func (e *NotConfigurable) Unwrap() error { return e.Cause }

// VersionMismatch indicates a node or the cluster root carries a different
// software version than the one currently running.
type VersionMismatch struct {
	Local string
	Node  string
}

func (e *VersionMismatch) Error() string {
	return fmt.Sprintf("version mismatch: running %s, node has %s", e.Local, e.Node)
}

// DuplicateNode indicates two DSNs resolved to the same node id.
type DuplicateNode struct {
	NodeID string
	DSNA   string
	DSNB   string
}

func (e *DuplicateNode) Error() string {
	return fmt.Sprintf("duplicate node %s: both %s and %s resolve to it", e.NodeID, RedactDSN(e.DSNA), RedactDSN(e.DSNB))
}

// PossibleDeadlock indicates the advisory lock guard refused a concurrent
// setup attempt against the same uninitialized node.
type PossibleDeadlock struct {
	DSN string
}

func (e *PossibleDeadlock) Error() string {
	return fmt.Sprintf("possible deadlock: concurrent setup detected for %s", RedactDSN(e.DSN))
}

// LeaseLost indicates a held lease was found to no longer be held.
type LeaseLost struct {
	Path string
}

func (e *LeaseLost) Error() string {
	return fmt.Sprintf("lease lost: %s", e.Path)
}

// LeaseAcquisitionFailed indicates a lease could not be acquired (e.g. the
// acquisition context was cancelled while waiting).
type LeaseAcquisitionFailed struct {
	Path  string
	Cause error
}

func (e *LeaseAcquisitionFailed) Error() string {
	return fmt.Sprintf("lease acquisition failed for %s: %v", e.Path, e.Cause)
}

func (e *LeaseAcquisitionFailed) Unwrap() error { return e.Cause }

// CoordinationStoreConflict indicates an optimistic-concurrency failure on
// a coordination-store commit; the caller may retry the whole operation.
type CoordinationStoreConflict struct {
	Path     string
	Revision int64
}

func (e *CoordinationStoreConflict) Error() string {
	return fmt.Sprintf("coordination store conflict at %s: expected revision %d", e.Path, e.Revision)
}

// ClusterPartial indicates the coordination-store commit failed after one
// or more Postgres commits succeeded. The cluster is in a partially
// advanced state; repair is by re-running the operation or upgrade_cluster.
type ClusterPartial struct {
	CommittedNodeIDs []string
	Cause            error
}

func (e *ClusterPartial) Error() string {
	return fmt.Sprintf("cluster left partially advanced (%d databases committed), coordination store commit failed: %v", len(e.CommittedNodeIDs), e.Cause)
}

func (e *ClusterPartial) Unwrap() error { return e.Cause }

// InvalidEvent is the base kind for stream-validation failures. More
// specific validation errors embed it so errors.As(err, &InvalidEvent{})
// still matches.
type InvalidEvent struct {
	Reason string
}

func (e *InvalidEvent) Error() string {
	return fmt.Sprintf("invalid event: %s", e.Reason)
}

// InvalidBatch is an InvalidEvent specific to batch-id guard violations.
type InvalidBatch struct {
	InvalidEvent
	Expected, Actual uint64
}

// InvalidPublisher is an InvalidEvent specific to publisher-identity guard violations.
type InvalidPublisher struct {
	InvalidEvent
	Expected, Actual string
}

// TransactionAborted indicates a batch's message group ended without a
// terminal Commit/Rollback operation.
type TransactionAborted struct {
	BatchID uint64
}

func (e *TransactionAborted) Error() string {
	return fmt.Sprintf("transaction aborted: batch %d ended without a terminal operation", e.BatchID)
}

// TransactionCancelled indicates an explicit Rollback was observed.
type TransactionCancelled struct {
	BatchID uint64
}

func (e *TransactionCancelled) Error() string {
	return fmt.Sprintf("transaction cancelled: batch %d was rolled back", e.BatchID)
}

// CodecError indicates a malformed coordination-store or stream payload.
type CodecError struct {
	Context string
	Cause   error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec error (%s): %v", e.Context, e.Cause)
}

func (e *CodecError) Unwrap() error { return e.Cause }

// Cancelled indicates a queued subscribe/unsubscribe command was abandoned
// because the owning Coordinator stopped before processing it.
type Cancelled struct {
	Command string
}

func (e *Cancelled) Error() string {
	return fmt.Sprintf("%s cancelled: coordinator stopped before processing", e.Command)
}

// RedactDSN trims a DSN down to a form safe to place in error text: it
// never echoes credentials embedded in a postgres:// URL.
func RedactDSN(dsn string) string {
	at := -1
	for i, c := range dsn {
		if c == '@' {
			at = i
		}
	}
	scheme := -1
	for i := 0; i+2 < len(dsn); i++ {
		if dsn[i] == ':' && dsn[i+1] == '/' && dsn[i+2] == '/' {
			scheme = i + 3
			break
		}
	}
	if at > 0 && scheme > 0 && at > scheme {
		return dsn[:scheme] + "***@" + dsn[at+1:]
	}
	return dsn
}
