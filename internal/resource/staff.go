package resource

import "encoding/json"

// Staff is a bookable staff member. DisplayName is the UI-facing field;
// FullName is the storage column. Both stay populated so code reading
// either keeps working across the rename.
type Staff struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id,omitempty"`
	DisplayName string `json:"name,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	Role        string `json:"role,omitempty"`
	Confirmed   bool   `json:"confirmed,omitempty"`
}

// ApplyStaffPatch shallow-merges allowlisted fields onto the staff record.
func ApplyStaffPatch(base Staff, patch Patch) Staff {
	out := base
	if value, ok := patch.String("name"); ok {
		out.DisplayName = value
	}
	if value, ok := patch.String("full_name"); ok {
		out.FullName = value
	}
	if value, ok := patch.String("role"); ok {
		out.Role = value
	}
	if value, ok := patch.Bool("confirmed"); ok {
		out.Confirmed = value
	}
	return NormalizeStaff(out)
}

// NormalizeStaff mirrors the storage name into the display name when only
// one side is present.
func NormalizeStaff(s Staff) Staff {
	out := s
	if out.DisplayName == "" && out.FullName != "" {
		out.DisplayName = out.FullName
	}
	if out.FullName == "" && out.DisplayName != "" {
		out.FullName = out.DisplayName
	}
	return out
}

// DecodeStaff parses a raw remote row or mutation payload.
func DecodeStaff(raw json.RawMessage) (Staff, error) {
	var s Staff
	if err := json.Unmarshal(raw, &s); err != nil {
		return Staff{}, err
	}
	return s, nil
}

// EncodeStaff serializes a staff record for queueing or transport.
func EncodeStaff(s Staff) (json.RawMessage, error) {
	return json.Marshal(s)
}
