package appstate

import (
	"context"
	"testing"

	"github.com/shopdeskhq/shopdesk/internal/identity"
	"github.com/shopdeskhq/shopdesk/internal/localstore"
	"github.com/shopdeskhq/shopdesk/internal/resource"
)

func TestLoadLocalSurfacesCachedSnapshots(t *testing.T) {
	f := newFixture(t, cloudIdentity())
	if err := f.Store.Put(localstore.SnapshotKey(resource.TableAppointments, testOwner),
		`[{"id":"apt-1","status":"confirmed","confirmed":true}]`); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	if err := f.Store.Put(localstore.SnapshotKey(resource.TableSettings, testOwner),
		`{"schema_version":1,"business_name":"Mari's Salon"}`); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}

	f.Context.LoadLocal()

	if f.Context.Phase() != PhaseLocalLoaded {
		t.Fatalf("unexpected phase: %q", f.Context.Phase())
	}
	appointments := f.Context.Appointments()
	if len(appointments) != 1 || appointments[0].ID != "apt-1" {
		t.Fatalf("unexpected appointments: %#v", appointments)
	}
	if f.Context.Settings().BusinessName != "Mari's Salon" {
		t.Fatalf("unexpected settings: %#v", f.Context.Settings())
	}
}

func TestLoadLocalTreatsCorruptCacheAsAbsent(t *testing.T) {
	f := newFixture(t, cloudIdentity())
	if err := f.Store.Put(localstore.SnapshotKey(resource.TableAppointments, testOwner), "{broken"); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}

	f.Context.LoadLocal()

	if count := len(f.Context.Appointments()); count != 0 {
		t.Fatalf("expected corrupt cache treated as absent, got %d records", count)
	}
	if f.Context.Phase() != PhaseLocalLoaded {
		t.Fatalf("expected load to complete despite corruption, phase %q", f.Context.Phase())
	}
}

func TestLoadLocalWithoutIdentityIsNoOp(t *testing.T) {
	f := newFixture(t, identity.Identity{})

	f.Context.LoadLocal()

	if f.Context.Phase() != PhaseUninitialized {
		t.Fatalf("expected phase unchanged, got %q", f.Context.Phase())
	}
}

func TestReconcileStampsRemoteRowsConfirmed(t *testing.T) {
	f := newFixture(t, cloudIdentity())
	f.Remote.Seed(resource.TableAppointments, testOwner,
		mustRaw(t, map[string]any{"id": "apt-1", "owner_id": testOwner, "status": "pending", "start_time": "2026-09-14T10:00:00Z"}))

	if err := f.Context.Reconcile(context.Background()); err != nil {
		t.Fatalf("unexpected reconcile error: %v", err)
	}

	if f.Context.Phase() != PhaseReconciled {
		t.Fatalf("unexpected phase: %q", f.Context.Phase())
	}
	appointments := f.Context.Appointments()
	if len(appointments) != 1 {
		t.Fatalf("unexpected appointments: %#v", appointments)
	}
	if !appointments[0].Confirmed {
		t.Fatalf("expected a remote-read row stamped confirmed")
	}
	if appointments[0].Date != "2026-09-14" {
		t.Fatalf("expected derived fields populated, got %#v", appointments[0])
	}
}

func TestReconcileMergesQueueOverRemote(t *testing.T) {
	f := newFixture(t, cloudIdentity())
	f.Remote.Seed(resource.TableAppointments, testOwner,
		mustRaw(t, map[string]any{"id": "apt-1", "owner_id": testOwner, "status": "pending"}))
	f.Queue.Enqueue(resource.TableAppointments, resource.ActionUpdate, "apt-1",
		mustRaw(t, resource.Patch{"status": "cancelled"}))

	if err := f.Context.Reconcile(context.Background()); err != nil {
		t.Fatalf("unexpected reconcile error: %v", err)
	}

	appointments := f.Context.Appointments()
	if appointments[0].Status != "cancelled" {
		t.Fatalf("expected queued update layered over remote, got %q", appointments[0].Status)
	}
}

func TestReconcilePersistsSnapshotsToCache(t *testing.T) {
	f := newFixture(t, cloudIdentity())
	f.Remote.Seed(resource.TableServices, testOwner,
		mustRaw(t, map[string]any{"id": "svc-1", "owner_id": testOwner, "name": "Haircut"}))

	if err := f.Context.Reconcile(context.Background()); err != nil {
		t.Fatalf("unexpected reconcile error: %v", err)
	}

	stored, found, err := f.Store.Get(localstore.SnapshotKey(resource.TableServices, testOwner))
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if !found || stored == "" {
		t.Fatalf("expected reconciled snapshot persisted")
	}

	reloaded := loadSnapshot[resource.Service](f.Context, resource.TableServices, testOwner)
	if len(reloaded) != 1 || reloaded[0].Name != "Haircut" {
		t.Fatalf("unexpected reloaded snapshot: %#v", reloaded)
	}
}

func TestReconcileSkipsSkeletonIdentity(t *testing.T) {
	skeleton := cloudIdentity()
	skeleton.Skeleton = true
	f := newFixture(t, skeleton)
	f.Remote.Seed(resource.TableAppointments, testOwner,
		mustRaw(t, map[string]any{"id": "apt-1", "owner_id": testOwner}))

	if err := f.Context.Reconcile(context.Background()); err != nil {
		t.Fatalf("unexpected reconcile error: %v", err)
	}
	if count := len(f.Context.Appointments()); count != 0 {
		t.Fatalf("expected skeleton identity to skip reconciliation, got %d records", count)
	}
	if f.Context.Phase() != PhaseUninitialized {
		t.Fatalf("expected phase unchanged, got %q", f.Context.Phase())
	}
}

func TestReconcileSkipsMockSession(t *testing.T) {
	mock := identity.Identity{ID: testOwner, Session: identity.SessionMock}
	f := newFixture(t, mock)
	f.Remote.Seed(resource.TableAppointments, testOwner,
		mustRaw(t, map[string]any{"id": "apt-1", "owner_id": testOwner}))

	if err := f.Context.Reconcile(context.Background()); err != nil {
		t.Fatalf("unexpected reconcile error: %v", err)
	}
	if count := len(f.Context.Appointments()); count != 0 {
		t.Fatalf("expected mock session to stay local-only, got %d records", count)
	}
}

func TestReconcileMergesRemoteSettings(t *testing.T) {
	f := newFixture(t, cloudIdentity())
	f.Remote.Seed(resource.TableSettings, testOwner,
		mustRaw(t, map[string]any{
			"schema_version": 1,
			"owner_id":       testOwner,
			"business_name":  "Mari's Salon",
			"slot_minutes":   45,
		}))

	if err := f.Context.Reconcile(context.Background()); err != nil {
		t.Fatalf("unexpected reconcile error: %v", err)
	}

	settings := f.Context.Settings()
	if settings.BusinessName != "Mari's Salon" || settings.SlotMinutes != 45 {
		t.Fatalf("unexpected merged settings: %#v", settings)
	}
}
