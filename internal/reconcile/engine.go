// Package reconcile merges the three sources of truth for a resource
// collection into one authoritative snapshot: the remote store's current
// rows, the pending mutation queue, and the previous local snapshot.
//
// The pass order is fixed (deletes, updates, inserts, propagation-lag
// protection) so the result is deterministic for a given input triple, and
// every pass is idempotent so out-of-order or duplicate async completions
// cannot corrupt state.
package reconcile

import (
	"github.com/shopdeskhq/shopdesk/internal/resource"
)

// CollectionInput carries the merge sources for one table. RemoteKnown is
// false when the remote fetch failed or the session never reached the
// backend; the merge then trusts local state and the queue alone.
type CollectionInput[R any] struct {
	Remote      []R
	RemoteKnown bool
	Queue       []resource.Mutation
	Local       []R

	// OnDecodeError observes queued mutations whose payloads fail to
	// decode. Such mutations are skipped; callers log them.
	OnDecodeError func(resource.Mutation, error)
}

// MergeCollection produces the authoritative snapshot for codec.Table.
func MergeCollection[R any](codec Codec[R], input CollectionInput[R]) []R {
	queue := filterTable(input.Queue, codec.Table)

	pendingDeletes := make(map[string]bool)
	pendingUpdates := make(map[string]bool)
	for _, mutation := range queue {
		switch mutation.Action {
		case resource.ActionDelete:
			pendingDeletes[mutation.TargetID] = true
		case resource.ActionUpdate:
			pendingUpdates[mutation.TargetID] = true
		}
	}

	var working []R
	if input.RemoteKnown {
		working = append(working, input.Remote...)
	} else {
		working = append(working, input.Local...)
	}

	// Pass 1: a delete the remote has not acknowledged yet must not let a
	// stale remote row resurrect the record.
	kept := working[:0]
	for _, record := range working {
		if !pendingDeletes[codec.ID(record)] {
			kept = append(kept, record)
		}
	}
	working = kept

	// Pass 2: pending updates in queue order, so the last enqueued write
	// wins for a contested record.
	for _, mutation := range queue {
		if mutation.Action != resource.ActionUpdate {
			continue
		}
		patch, err := mutation.PatchFromPayload()
		if err != nil {
			if input.OnDecodeError != nil {
				input.OnDecodeError(mutation, err)
			}
			continue
		}
		for index, record := range working {
			if codec.ID(record) == mutation.TargetID {
				working[index] = codec.Apply(record, patch)
				break
			}
		}
	}

	// Pass 3: locally created records not yet round-tripped through the
	// remote store stay visible, prepended, never duplicated.
	for _, mutation := range queue {
		if mutation.Action != resource.ActionInsert {
			continue
		}
		record, err := codec.Decode(mutation.Payload)
		if err != nil {
			if input.OnDecodeError != nil {
				input.OnDecodeError(mutation, err)
			}
			continue
		}
		if indexOf(codec, working, codec.ID(record)) >= 0 {
			continue
		}
		working = append([]R{record}, working...)
	}

	// Pass 4: propagation-lag protection. A confirmed record the previous
	// snapshot held but the merged set lost (and that no pending delete
	// explains) is a write the remote read replica has not caught up with
	// yet; restore it. Records present on both sides go through the
	// codec's table-specific preference hook.
	for _, local := range input.Local {
		id := codec.ID(local)
		if pendingDeletes[id] {
			continue
		}
		index := indexOf(codec, working, id)
		if index < 0 {
			if codec.Confirmed(local) {
				working = append(working, local)
			}
			continue
		}
		if codec.PreferLocal != nil {
			working[index] = codec.PreferLocal(local, working[index], pendingUpdates[id])
		}
	}

	for index, record := range working {
		working[index] = codec.Normalize(record)
	}
	return working
}

func filterTable(queue []resource.Mutation, table resource.Table) []resource.Mutation {
	out := make([]resource.Mutation, 0, len(queue))
	for _, mutation := range queue {
		if mutation.Table == table {
			out = append(out, mutation)
		}
	}
	return out
}

func indexOf[R any](codec Codec[R], records []R, id string) int {
	for index, record := range records {
		if codec.ID(record) == id {
			return index
		}
	}
	return -1
}
