package reconcile

import (
	"encoding/json"
	"testing"

	"github.com/shopdeskhq/shopdesk/internal/resource"
)

func mustPayload(t *testing.T, value any) json.RawMessage {
	t.Helper()
	encoded, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("unexpected payload encode error: %v", err)
	}
	return encoded
}

func insertMutation(t *testing.T, seq int64, table resource.Table, record any) resource.Mutation {
	t.Helper()
	return resource.Mutation{
		Seq:     seq,
		Table:   table,
		Action:  resource.ActionInsert,
		Payload: mustPayload(t, record),
	}
}

func updateMutation(t *testing.T, seq int64, table resource.Table, targetID string, patch resource.Patch) resource.Mutation {
	t.Helper()
	return resource.Mutation{
		Seq:      seq,
		Table:    table,
		Action:   resource.ActionUpdate,
		TargetID: targetID,
		Payload:  mustPayload(t, patch),
	}
}

func deleteMutation(seq int64, table resource.Table, targetID string) resource.Mutation {
	return resource.Mutation{
		Seq:      seq,
		Table:    table,
		Action:   resource.ActionDelete,
		TargetID: targetID,
	}
}

func appointmentIDs(appointments []resource.Appointment) []string {
	ids := make([]string, 0, len(appointments))
	for _, appointment := range appointments {
		ids = append(ids, appointment.ID)
	}
	return ids
}

func findAppointment(t *testing.T, appointments []resource.Appointment, id string) resource.Appointment {
	t.Helper()
	for _, appointment := range appointments {
		if appointment.ID == id {
			return appointment
		}
	}
	t.Fatalf("appointment %q not found in %v", id, appointmentIDs(appointments))
	return resource.Appointment{}
}
