package appstate

import (
	"context"
	"testing"
	"time"

	"github.com/shopdeskhq/shopdesk/internal/identity"
	"github.com/shopdeskhq/shopdesk/internal/remote"
	"github.com/shopdeskhq/shopdesk/internal/resource"
)

func TestApplyEventInsertAddsAndIsIdempotent(t *testing.T) {
	f := newFixture(t, cloudIdentity())

	event := remote.ChangeEvent{
		Table:  resource.TableAppointments,
		Action: resource.ActionInsert,
		Record: mustRaw(t, map[string]any{"id": "apt-1", "status": "pending", "start_time": "2026-09-14T10:00:00Z"}),
	}
	f.Context.ApplyEvent(event)
	f.Context.ApplyEvent(event)

	appointments := f.Context.Appointments()
	if len(appointments) != 1 {
		t.Fatalf("expected duplicate insert ignored, got %d records", len(appointments))
	}
	if !appointments[0].Confirmed {
		t.Fatalf("expected a server-pushed record stamped confirmed")
	}
	if appointments[0].Date != "2026-09-14" {
		t.Fatalf("expected derived fields populated, got %#v", appointments[0])
	}
}

func TestApplyEventInsertEchoConfirmsOptimisticRecord(t *testing.T) {
	f := newFixture(t, cloudIdentity())

	record, err := f.Context.AddAppointment(context.Background(), AppointmentInput{
		ActorID: testOwner,
		Date:    "2026-09-14",
		Time:    "10:00",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Confirmed {
		t.Fatalf("expected the optimistic record unconfirmed before the echo")
	}

	f.Context.ApplyEvent(remote.ChangeEvent{
		Table:  resource.TableAppointments,
		Action: resource.ActionInsert,
		Record: mustRaw(t, map[string]any{"id": record.ID, "status": "pending"}),
	})

	appointments := f.Context.Appointments()
	if len(appointments) != 1 {
		t.Fatalf("expected the echo not to duplicate, got %d records", len(appointments))
	}
	if !appointments[0].Confirmed {
		t.Fatalf("expected the echo to confirm the optimistic record")
	}
	if appointments[0].CustomerName != record.CustomerName || appointments[0].StartTime != record.StartTime {
		t.Fatalf("expected the optimistic record preserved, got %#v", appointments[0])
	}
}

func TestApplyEventUpdateReplacesRecord(t *testing.T) {
	f := newFixture(t, cloudIdentity())
	f.Context.ApplyEvent(remote.ChangeEvent{
		Table:  resource.TableAppointments,
		Action: resource.ActionInsert,
		Record: mustRaw(t, map[string]any{"id": "apt-1", "status": "pending"}),
	})

	f.Context.ApplyEvent(remote.ChangeEvent{
		Table:  resource.TableAppointments,
		Action: resource.ActionUpdate,
		Record: mustRaw(t, map[string]any{"id": "apt-1", "status": "confirmed"}),
	})

	appointments := f.Context.Appointments()
	if appointments[0].Status != "confirmed" {
		t.Fatalf("expected update applied, got %q", appointments[0].Status)
	}
}

func TestApplyEventUpdateForUnknownRecordIsIgnored(t *testing.T) {
	f := newFixture(t, cloudIdentity())

	f.Context.ApplyEvent(remote.ChangeEvent{
		Table:  resource.TableAppointments,
		Action: resource.ActionUpdate,
		Record: mustRaw(t, map[string]any{"id": "apt-ghost", "status": "confirmed"}),
	})

	if count := len(f.Context.Appointments()); count != 0 {
		t.Fatalf("expected update for unknown record ignored, got %d records", count)
	}
}

func TestApplyEventDeleteRemovesAndIsIdempotent(t *testing.T) {
	f := newFixture(t, cloudIdentity())
	f.Context.ApplyEvent(remote.ChangeEvent{
		Table:  resource.TableAppointments,
		Action: resource.ActionInsert,
		Record: mustRaw(t, map[string]any{"id": "apt-1"}),
	})

	deleteEvent := remote.ChangeEvent{
		Table:  resource.TableAppointments,
		Action: resource.ActionDelete,
		Record: mustRaw(t, map[string]string{"id": "apt-1"}),
	}
	f.Context.ApplyEvent(deleteEvent)
	f.Context.ApplyEvent(deleteEvent)

	if count := len(f.Context.Appointments()); count != 0 {
		t.Fatalf("expected record removed, got %d", count)
	}
}

func TestApplyEventSettingsReplacesSingleton(t *testing.T) {
	f := newFixture(t, cloudIdentity())

	f.Context.ApplyEvent(remote.ChangeEvent{
		Table:  resource.TableSettings,
		Action: resource.ActionUpdate,
		Record: mustRaw(t, map[string]any{
			"schema_version": 1,
			"owner_id":       testOwner,
			"business_name":  "Mari's Salon",
		}),
	})

	if f.Context.Settings().BusinessName != "Mari's Salon" {
		t.Fatalf("unexpected settings: %#v", f.Context.Settings())
	}
}

func TestSubscribeAppliesPublishedEvents(t *testing.T) {
	f := newFixture(t, cloudIdentity())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.Context.Subscribe(ctx); err != nil {
		t.Fatalf("unexpected subscribe error: %v", err)
	}
	if f.Context.Phase() != PhaseLive {
		t.Fatalf("expected live phase after subscribing, got %q", f.Context.Phase())
	}

	if err := f.Remote.Insert(context.Background(), resource.TableAppointments,
		mustRaw(t, map[string]any{"id": "apt-live", "owner_id": testOwner, "status": "pending"})); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		appointments := f.Context.Appointments()
		return len(appointments) == 1 && appointments[0].ID == "apt-live"
	})
}

func TestSubscribeSkipsMockSession(t *testing.T) {
	mockIdentity := cloudIdentity()
	mockIdentity.Session = identity.SessionMock
	f := newFixture(t, mockIdentity)

	if err := f.Context.Subscribe(context.Background()); err != nil {
		t.Fatalf("unexpected subscribe error: %v", err)
	}
	if f.Context.Phase() == PhaseLive {
		t.Fatalf("expected mock session to stay out of the live phase")
	}
}
