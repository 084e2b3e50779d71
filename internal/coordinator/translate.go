package coordinator

import (
	"encoding/json"
	"fmt"

	"shoveld/internal/queue"
	"shoveld/internal/shovelerrors"
	"shoveld/internal/stream"
)

// eventPayload mirrors stream.Mutation's fields as they arrive encoded in
// queue.Event.Data — the audit trigger's payload shape (out of scope for
// this repository; messages arrive already encoded this way).
type eventPayload struct {
	Schema     string         `json:"schema"`
	Table      string         `json:"table"`
	PKeyValues map[string]any `json:"pkey_values"`
	NewRow     map[string]any `json:"new_row"`
	OldRow     map[string]any `json:"old_row"`
	Timestamp  int64          `json:"timestamp"`
	TxID       uint64         `json:"tx_id"`
}

// decodeMutation unmarshals one queue event into a stream.Mutation.
func decodeMutation(ev queue.Event) (stream.Mutation, error) {
	var p eventPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return stream.Mutation{}, &shovelerrors.CodecError{
			Context: fmt.Sprintf("decode event %d", ev.ID),
			Cause:   err,
		}
	}
	return stream.Mutation{
		Schema:     p.Schema,
		Table:      p.Table,
		PKeyValues: p.PKeyValues,
		NewRow:     p.NewRow,
		OldRow:     p.OldRow,
		Timestamp:  p.Timestamp,
		TxID:       p.TxID,
	}, nil
}
