package resource

import "encoding/json"

// Mutation is a single not-yet-acknowledged write awaiting replay against
// the remote store. Queue position (Seq) is the tie-break for conflicting
// updates to the same record: last enqueued wins.
type Mutation struct {
	Seq               int64           `json:"seq"`
	Table             Table           `json:"table"`
	Action            Action          `json:"action"`
	TargetID          string          `json:"target_id,omitempty"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	EnqueuedAtSeconds int64           `json:"enqueued_at_s"`
}

// PatchFromPayload decodes the mutation payload as a field patch.
func (m Mutation) PatchFromPayload() (Patch, error) {
	if len(m.Payload) == 0 {
		return Patch{}, nil
	}
	var patch Patch
	if err := json.Unmarshal(m.Payload, &patch); err != nil {
		return nil, err
	}
	return patch, nil
}
