package resource

import "encoding/json"

// Patch is a sparse set of field assignments keyed by storage field name.
// Patches are applied through per-table allowlist functions; keys outside
// a table's allowlist are dropped rather than merged blindly.
type Patch map[string]any

// Has reports whether the patch carries the given field.
func (p Patch) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String extracts a string field from the patch.
func (p Patch) String(key string) (string, bool) {
	raw, ok := p[key]
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	return value, ok
}

// Int extracts an integer field from the patch. JSON numbers decode as
// float64, so both representations are accepted.
func (p Patch) Int(key string) (int, bool) {
	raw, ok := p[key]
	if !ok {
		return 0, false
	}
	switch value := raw.(type) {
	case float64:
		return int(value), true
	case int:
		return value, true
	case int64:
		return int(value), true
	case json.Number:
		parsed, err := value.Int64()
		if err != nil {
			return 0, false
		}
		return int(parsed), true
	}
	return 0, false
}

// Int64 extracts a 64-bit integer field from the patch.
func (p Patch) Int64(key string) (int64, bool) {
	value, ok := p.Int(key)
	return int64(value), ok
}

// Bool extracts a boolean field from the patch.
func (p Patch) Bool(key string) (bool, bool) {
	raw, ok := p[key]
	if !ok {
		return false, false
	}
	value, ok := raw.(bool)
	return value, ok
}

// Encode serializes the patch for queueing or transport.
func (p Patch) Encode() (json.RawMessage, error) {
	return json.Marshal(p)
}

// Clone returns a shallow copy so callers can translate fields without
// mutating the original.
func (p Patch) Clone() Patch {
	out := make(Patch, len(p))
	for key, value := range p {
		out[key] = value
	}
	return out
}
