// Package queue wraps the external asynchronous queue extension's
// function-call surface (§6: create_queue, drop_queue, register_consumer,
// next_batch_info, get_batch_events, finish_batch) behind a small Go
// interface. The extension itself is an external collaborator out of
// scope for this repository; this package only issues calls matching its
// documented signature set through jackc/pgx/v5, the same driver the
// database bootstrap and trigger manager use.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BatchInfo identifies one reserved, not-yet-finished batch.
type BatchInfo struct {
	ID    int64
	Found bool
}

// Event is one row-level change event stored in a batch.
type Event struct {
	ID      int64
	EventType string
	Data    json.RawMessage
}

// Client issues queue-extension calls against a single shared
// connection. It holds no connection of its own — callers (the Consumer)
// pass a pgx.Tx open on the shared connection whose serialized access
// discipline they already enforce.
type Client struct{}

// New returns a Client. It is stateless; kept as a type so call sites
// read as c.queue.RegisterConsumer(...) rather than bare package
// functions, matching how the reference codebase groups related
// external-service calls under a receiver even when there is no
// instance state to hold.
func New() *Client { return &Client{} }

// RegisterConsumer registers consumerName against queueName. Idempotent:
// the extension itself tolerates re-registering an existing consumer.
func (c *Client) RegisterConsumer(ctx context.Context, tx pgx.Tx, queueName, consumerName string) error {
	if _, err := tx.Exec(ctx, `SELECT pgq.register_consumer($1, $2)`, queueName, consumerName); err != nil {
		return fmt.Errorf("register consumer %s on queue %s: %w", consumerName, queueName, err)
	}
	return nil
}

// NextBatch reserves the next unprocessed batch for consumerName,
// returning BatchInfo{Found: false} when none is pending.
func (c *Client) NextBatch(ctx context.Context, tx pgx.Tx, queueName, consumerName string) (BatchInfo, error) {
	var id *int64
	err := tx.QueryRow(ctx, `SELECT pgq.next_batch($1, $2)`, queueName, consumerName).Scan(&id)
	if err != nil {
		return BatchInfo{}, fmt.Errorf("next batch for %s on %s: %w", consumerName, queueName, err)
	}
	if id == nil {
		return BatchInfo{}, nil
	}
	return BatchInfo{ID: *id, Found: true}, nil
}

// BatchEvents fetches every event belonging to batchID.
func (c *Client) BatchEvents(ctx context.Context, tx pgx.Tx, batchID int64) ([]Event, error) {
	rows, err := tx.Query(ctx, `SELECT ev_id, ev_type, ev_data FROM pgq.get_batch_events($1)`, batchID)
	if err != nil {
		return nil, fmt.Errorf("get batch events for %d: %w", batchID, err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.EventType, &e.Data); err != nil {
			return nil, fmt.Errorf("scan batch event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FinishBatch marks batchID as fully processed.
func (c *Client) FinishBatch(ctx context.Context, tx pgx.Tx, batchID int64) error {
	if _, err := tx.Exec(ctx, `SELECT pgq.finish_batch($1)`, batchID); err != nil {
		return fmt.Errorf("finish batch %d: %w", batchID, err)
	}
	return nil
}
