package reconcile

import (
	"encoding/json"

	"github.com/shopdeskhq/shopdesk/internal/resource"
)

// Codec describes how the engine handles one record type: identity,
// confirmation state, allowlist patching, wire decoding, and
// normalization. Table-specific merge quirks live in PreferLocal so the
// pass structure itself stays uniform.
type Codec[R any] struct {
	Table     resource.Table
	ID        func(R) string
	Confirmed func(R) bool
	Apply     func(R, resource.Patch) R
	Decode    func(json.RawMessage) (R, error)
	Encode    func(R) (json.RawMessage, error)
	Normalize func(R) R

	// PreferLocal reconciles a record present in both the previous local
	// snapshot and the merged working set. pendingUpdate reports whether
	// the queue still holds an update for this id. Nil means the merged
	// copy always stands.
	PreferLocal func(local, merged R, pendingUpdate bool) R
}

// AppointmentCodec wires the appointment table, including the
// status-propagation rule: a very recent local status change that has not
// reached reads yet beats the merged status unless an update for the same
// id is still queued.
func AppointmentCodec() Codec[resource.Appointment] {
	return Codec[resource.Appointment]{
		Table:     resource.TableAppointments,
		ID:        func(a resource.Appointment) string { return a.ID },
		Confirmed: func(a resource.Appointment) bool { return a.Confirmed },
		Apply:     resource.ApplyAppointmentPatch,
		Decode:    resource.DecodeAppointment,
		Encode:    resource.EncodeAppointment,
		Normalize: resource.NormalizeAppointment,
		PreferLocal: func(local, merged resource.Appointment, pendingUpdate bool) resource.Appointment {
			if pendingUpdate {
				return merged
			}
			if local.Status != "" && local.Status != merged.Status {
				merged.Status = local.Status
			}
			return merged
		},
	}
}

// ServiceCodec wires the service catalog table.
func ServiceCodec() Codec[resource.Service] {
	return Codec[resource.Service]{
		Table:     resource.TableServices,
		ID:        func(s resource.Service) string { return s.ID },
		Confirmed: func(s resource.Service) bool { return s.Confirmed },
		Apply:     resource.ApplyServicePatch,
		Decode:    resource.DecodeService,
		Encode:    resource.EncodeService,
		Normalize: func(s resource.Service) resource.Service { return s },
	}
}

// StaffCodec wires the staff table.
func StaffCodec() Codec[resource.Staff] {
	return Codec[resource.Staff]{
		Table:     resource.TableStaff,
		ID:        func(s resource.Staff) string { return s.ID },
		Confirmed: func(s resource.Staff) bool { return s.Confirmed },
		Apply:     resource.ApplyStaffPatch,
		Decode:    resource.DecodeStaff,
		Encode:    resource.EncodeStaff,
		Normalize: resource.NormalizeStaff,
	}
}
