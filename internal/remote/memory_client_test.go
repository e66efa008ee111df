package remote

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopdeskhq/shopdesk/internal/resource"
)

func TestMemoryClientWritesPublishOwnerScopedEvents(t *testing.T) {
	client := NewMemoryClient()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ownerEvents, stopOwner, err := client.Subscribe(ctx, "owner-1")
	if err != nil {
		t.Fatalf("unexpected subscribe error: %v", err)
	}
	defer stopOwner()
	otherEvents, stopOther, err := client.Subscribe(ctx, "owner-2")
	if err != nil {
		t.Fatalf("unexpected subscribe error: %v", err)
	}
	defer stopOther()

	record := json.RawMessage(`{"id":"apt-1","owner_id":"owner-1","status":"pending"}`)
	if err := client.Insert(ctx, resource.TableAppointments, record); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	select {
	case event := <-ownerEvents:
		if event.Action != resource.ActionInsert || event.RecordID() != "apt-1" {
			t.Fatalf("unexpected event: %#v", event)
		}
	default:
		t.Fatalf("expected the owner's subscriber to receive the insert")
	}
	select {
	case event := <-otherEvents:
		t.Fatalf("unexpected cross-owner event: %#v", event)
	default:
	}
}

func TestMemoryClientUpdateMergesAndEchoesFullRecord(t *testing.T) {
	client := NewMemoryClient()
	ctx := context.Background()
	client.Seed(resource.TableAppointments, "owner-1",
		json.RawMessage(`{"id":"apt-1","owner_id":"owner-1","status":"pending","customer_name":"Dana"}`))

	if err := client.Update(ctx, resource.TableAppointments, "apt-1",
		json.RawMessage(`{"status":"confirmed"}`)); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}

	rows, err := client.SelectByOwner(ctx, resource.TableAppointments, "owner-1")
	if err != nil {
		t.Fatalf("unexpected select error: %v", err)
	}
	var row map[string]any
	if err := json.Unmarshal(rows[0], &row); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if row["status"] != "confirmed" || row["customer_name"] != "Dana" {
		t.Fatalf("unexpected merged row: %v", row)
	}
}

func TestMemoryClientFailWritesSimulatesOutage(t *testing.T) {
	client := NewMemoryClient()
	client.FailWrites = true
	ctx := context.Background()

	if err := client.Insert(ctx, resource.TableAppointments,
		json.RawMessage(`{"id":"apt-1","owner_id":"owner-1"}`)); err != ErrWriteUnavailable {
		t.Fatalf("expected write unavailable, got %v", err)
	}
	if err := client.Delete(ctx, resource.TableAppointments, "apt-1"); err != ErrWriteUnavailable {
		t.Fatalf("expected write unavailable, got %v", err)
	}
}

func TestSubscribeTeardownClosesStream(t *testing.T) {
	client := NewMemoryClient()
	ctx, cancel := context.WithCancel(context.Background())

	events, stop, err := client.Subscribe(ctx, "owner-1")
	if err != nil {
		t.Fatalf("unexpected subscribe error: %v", err)
	}
	stop()
	cancel()

	if _, open := <-events; open {
		t.Fatalf("expected stream closed after teardown")
	}
}

func TestMemoryClientPublishDuringTeardownIsSafe(t *testing.T) {
	client := NewMemoryClient()
	record := json.RawMessage(`{"id":"apt-1","owner_id":"owner-1","status":"pending"}`)

	// A write landing while the subscriber tears down must never send on
	// the closed stream.
	for i := 0; i < 200; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		_, stop, err := client.Subscribe(ctx, "owner-1")
		if err != nil {
			cancel()
			t.Fatalf("unexpected subscribe error: %v", err)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = client.Insert(context.Background(), resource.TableAppointments, record)
		}()
		stop()
		<-done
		cancel()
	}
}

func TestWebsocketURLSwapsScheme(t *testing.T) {
	if got := websocketURL("https://sync.example.com"); got != "wss://sync.example.com" {
		t.Fatalf("unexpected url: %q", got)
	}
	if got := websocketURL("http://127.0.0.1:8780"); got != "ws://127.0.0.1:8780" {
		t.Fatalf("unexpected url: %q", got)
	}
}
