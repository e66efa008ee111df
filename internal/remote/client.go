// Package remote abstracts the hosted relational backend: bulk
// read-by-owner queries, single-row writes, and owner-scoped real-time
// change notifications.
package remote

import (
	"context"
	"encoding/json"

	"github.com/shopdeskhq/shopdesk/internal/resource"
)

// ChangeEvent is a single row-level change pushed by the remote store.
// Delivery is at least once and not necessarily in causal order; consumers
// must apply events idempotently.
type ChangeEvent struct {
	Table  resource.Table  `json:"table"`
	Action resource.Action `json:"action"`
	Record json.RawMessage `json:"record"`
}

// RecordID extracts the id field from the event payload. Delete events
// carry at least the id of the removed row.
func (e ChangeEvent) RecordID() string {
	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(e.Record, &envelope); err != nil {
		return ""
	}
	return envelope.ID
}

// Client is the boundary interface over the remote store. Implementations
// must scope every call to the provided owner.
type Client interface {
	// SelectByOwner returns all rows of table belonging to ownerID.
	SelectByOwner(ctx context.Context, table resource.Table, ownerID string) ([]json.RawMessage, error)
	// Insert writes a new row.
	Insert(ctx context.Context, table resource.Table, record json.RawMessage) error
	// Update applies a sparse field patch to an existing row.
	Update(ctx context.Context, table resource.Table, id string, patch json.RawMessage) error
	// Delete removes a row.
	Delete(ctx context.Context, table resource.Table, id string) error
	// Subscribe opens an owner-scoped change feed. Events arrive on the
	// returned channel until the stop function is called or ctx ends;
	// the channel is closed on teardown.
	Subscribe(ctx context.Context, ownerID string) (<-chan ChangeEvent, func(), error)
}
