package resource

import (
	"encoding/json"
	"time"
)

// Appointment models a customer appointment. StartTime and EndTime are
// RFC 3339 UTC instants as stored remotely; Date and TimeOfDay are the
// UI-facing fields derived from StartTime by the normalizer.
//
// Confirmed distinguishes records the remote store has acknowledged from
// locally minted records still waiting on their first round trip. The
// propagation-lag pass only restores confirmed records.
type Appointment struct {
	ID            string `json:"id"`
	OwnerID       string `json:"owner_id,omitempty"`
	ServiceID     string `json:"service_id,omitempty"`
	StaffID       string `json:"staff_id,omitempty"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	StartTime     string `json:"start_time,omitempty"`
	EndTime       string `json:"end_time,omitempty"`
	Status        string `json:"status,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
	Date          string `json:"date,omitempty"`
	TimeOfDay     string `json:"time,omitempty"`
	Confirmed     bool   `json:"confirmed,omitempty"`
}

// DefaultServiceDuration applies when an appointment references a service
// with no duration on record.
const DefaultServiceDuration = 30 * time.Minute

// ApplyAppointmentPatch shallow-merges allowlisted fields onto the
// appointment. Fields absent from the patch are preserved.
func ApplyAppointmentPatch(base Appointment, patch Patch) Appointment {
	out := base
	if value, ok := patch.String("service_id"); ok {
		out.ServiceID = value
	}
	if value, ok := patch.String("staff_id"); ok {
		out.StaffID = value
	}
	if value, ok := patch.String("customer_name"); ok {
		out.CustomerName = value
	}
	if value, ok := patch.String("customer_phone"); ok {
		out.CustomerPhone = value
	}
	if value, ok := patch.String("start_time"); ok {
		out.StartTime = value
	}
	if value, ok := patch.String("end_time"); ok {
		out.EndTime = value
	}
	if value, ok := patch.String("status"); ok {
		out.Status = value
	}
	if value, ok := patch.String("payment_status"); ok {
		out.PaymentStatus = value
	}
	if value, ok := patch.String("date"); ok {
		out.Date = value
	}
	if value, ok := patch.String("time"); ok {
		out.TimeOfDay = value
	}
	if value, ok := patch.Bool("confirmed"); ok {
		out.Confirmed = value
	}
	// Re-deriving date and time is only safe when the patch moved the
	// start instant without also setting them explicitly.
	if patch.Has("start_time") && !patch.Has("date") && !patch.Has("time") {
		out = NormalizeAppointment(out)
	}
	return out
}

// NormalizeAppointment derives the UI-facing date and time-of-day fields
// from the stored start instant. Substring derivation keeps the mapping
// cheap; an unparsable start time leaves the derived fields untouched.
func NormalizeAppointment(a Appointment) Appointment {
	out := a
	if len(a.StartTime) >= 16 {
		if _, err := time.Parse(time.RFC3339, a.StartTime); err == nil {
			out.Date = a.StartTime[:10]
			out.TimeOfDay = a.StartTime[11:16]
		}
	}
	return out
}

// DecodeAppointment parses a raw remote row or mutation payload.
func DecodeAppointment(raw json.RawMessage) (Appointment, error) {
	var a Appointment
	if err := json.Unmarshal(raw, &a); err != nil {
		return Appointment{}, err
	}
	return a, nil
}

// EncodeAppointment serializes an appointment for queueing or transport.
func EncodeAppointment(a Appointment) (json.RawMessage, error) {
	return json.Marshal(a)
}
