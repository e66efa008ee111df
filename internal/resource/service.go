package resource

import "encoding/json"

// Service is a bookable service offered by the business.
type Service struct {
	ID              string `json:"id"`
	OwnerID         string `json:"owner_id,omitempty"`
	Name            string `json:"name,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	PriceCents      int64  `json:"price_cents,omitempty"`
	Confirmed       bool   `json:"confirmed,omitempty"`
}

// ApplyServicePatch shallow-merges allowlisted fields onto the service.
func ApplyServicePatch(base Service, patch Patch) Service {
	out := base
	if value, ok := patch.String("name"); ok {
		out.Name = value
	}
	if value, ok := patch.Int("duration_minutes"); ok {
		out.DurationMinutes = value
	}
	if value, ok := patch.Int64("price_cents"); ok {
		out.PriceCents = value
	}
	if value, ok := patch.Bool("confirmed"); ok {
		out.Confirmed = value
	}
	return out
}

// DecodeService parses a raw remote row or mutation payload.
func DecodeService(raw json.RawMessage) (Service, error) {
	var s Service
	if err := json.Unmarshal(raw, &s); err != nil {
		return Service{}, err
	}
	return s, nil
}

// EncodeService serializes a service for queueing or transport.
func EncodeService(s Service) (json.RawMessage, error) {
	return json.Marshal(s)
}
