package localstore

import (
	"path/filepath"
	"testing"

	"github.com/shopdeskhq/shopdesk/internal/resource"
)

func mustOpen(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"), nil)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("unexpected close error: %v", err)
		}
	})
	return store
}

func TestPutThenGetRoundTrips(t *testing.T) {
	store := mustOpen(t)

	if err := store.Put("appointments_owner-1", `[{"id":"apt-1"}]`); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}

	value, found, err := store.Get("appointments_owner-1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if !found {
		t.Fatalf("expected key present")
	}
	if value != `[{"id":"apt-1"}]` {
		t.Fatalf("unexpected stored value: %q", value)
	}
}

func TestGetMissingKeyReportsAbsent(t *testing.T) {
	store := mustOpen(t)

	_, found, err := store.Get("never_written")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if found {
		t.Fatalf("expected key absent")
	}
}

func TestPutOverwritesPreviousValue(t *testing.T) {
	store := mustOpen(t)

	if err := store.Put("key", "first"); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	if err := store.Put("key", "second"); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}

	value, _, err := store.Get("key")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if value != "second" {
		t.Fatalf("expected overwrite, got %q", value)
	}
}

func TestSaveSnapshotRefusesEmptyOverRichState(t *testing.T) {
	store := mustOpen(t)

	if err := store.SaveSnapshot(resource.TableAppointments, "owner-1", `[{"id":"apt-1"}]`); err != nil {
		t.Fatalf("unexpected snapshot error: %v", err)
	}
	if err := store.SaveSnapshot(resource.TableAppointments, "owner-1", "[]"); err != nil {
		t.Fatalf("unexpected snapshot error: %v", err)
	}

	value, _, err := store.Get(SnapshotKey(resource.TableAppointments, "owner-1"))
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if value != `[{"id":"apt-1"}]` {
		t.Fatalf("expected rich snapshot preserved, got %q", value)
	}
}

func TestSaveSnapshotAllowsEmptyOverEmpty(t *testing.T) {
	store := mustOpen(t)

	if err := store.SaveSnapshot(resource.TableServices, "owner-1", "[]"); err != nil {
		t.Fatalf("unexpected snapshot error: %v", err)
	}

	value, found, err := store.Get(SnapshotKey(resource.TableServices, "owner-1"))
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if !found || value != "[]" {
		t.Fatalf("expected empty snapshot stored when nothing richer exists, got %q", value)
	}
}

func TestSaveSnapshotReplacesRichWithRich(t *testing.T) {
	store := mustOpen(t)

	if err := store.SaveSnapshot(resource.TableStaff, "owner-1", `[{"id":"stf-1"}]`); err != nil {
		t.Fatalf("unexpected snapshot error: %v", err)
	}
	if err := store.SaveSnapshot(resource.TableStaff, "owner-1", `[{"id":"stf-2"}]`); err != nil {
		t.Fatalf("unexpected snapshot error: %v", err)
	}

	value, _, err := store.Get(SnapshotKey(resource.TableStaff, "owner-1"))
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if value != `[{"id":"stf-2"}]` {
		t.Fatalf("expected newer snapshot stored, got %q", value)
	}
}

func TestSnapshotAndQueueKeysAreOwnerScoped(t *testing.T) {
	if key := SnapshotKey(resource.TableAppointments, "owner-1"); key != "appointments_owner-1" {
		t.Fatalf("unexpected snapshot key: %q", key)
	}
	if key := QueueKey("owner-1"); key != "mutation_queue_owner-1" {
		t.Fatalf("unexpected queue key: %q", key)
	}
}
