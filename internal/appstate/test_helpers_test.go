package appstate

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopdeskhq/shopdesk/internal/identity"
	"github.com/shopdeskhq/shopdesk/internal/localstore"
	"github.com/shopdeskhq/shopdesk/internal/remote"
	"github.com/shopdeskhq/shopdesk/internal/resource"
	"github.com/shopdeskhq/shopdesk/internal/syncqueue"
)

const testOwner = "owner-1"

type sequentialIDs struct {
	mu   sync.Mutex
	next int
}

func (p *sequentialIDs) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("generated-%d", p.next), nil
}

type capturedNotification struct {
	Contact string
	Message string
}

type captureDispatcher struct {
	mu   sync.Mutex
	sent []capturedNotification
}

func (d *captureDispatcher) Dispatch(contactAddress, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, capturedNotification{Contact: contactAddress, Message: message})
}

func (d *captureDispatcher) Sent() []capturedNotification {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]capturedNotification, len(d.sent))
	copy(out, d.sent)
	return out
}

type fixture struct {
	Context  *Context
	Store    *localstore.Store
	Queue    *syncqueue.Service
	Remote   *remote.MemoryClient
	Notifier *captureDispatcher
}

func cloudIdentity() identity.Identity {
	return identity.Identity{ID: testOwner, DisplayName: "Owner", Session: identity.SessionCloud}
}

func newFixture(t *testing.T, owner identity.Identity) *fixture {
	t.Helper()

	store, err := localstore.Open(filepath.Join(t.TempDir(), "cache.db"), nil)
	if err != nil {
		t.Fatalf("unexpected store open error: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("unexpected store close error: %v", err)
		}
	})

	queueOwner := owner.ID
	if queueOwner == "" {
		queueOwner = testOwner
	}
	ownerID, err := resource.NewOwnerID(queueOwner)
	if err != nil {
		t.Fatalf("unexpected owner id error: %v", err)
	}
	queue, err := syncqueue.NewService(syncqueue.ServiceConfig{
		Store:   store,
		OwnerID: ownerID,
	})
	if err != nil {
		t.Fatalf("unexpected queue error: %v", err)
	}

	client := remote.NewMemoryClient()
	notifier := &captureDispatcher{}

	resources, err := NewContext(ContextConfig{
		Identity:   owner,
		Store:      store,
		Queue:      queue,
		Remote:     client,
		Notifier:   notifier,
		Clock:      func() time.Time { return time.Unix(1756600000, 0).UTC() },
		IDProvider: &sequentialIDs{},
	})
	if err != nil {
		t.Fatalf("unexpected context error: %v", err)
	}
	t.Cleanup(resources.Close)

	return &fixture{
		Context:  resources,
		Store:    store,
		Queue:    queue,
		Remote:   client,
		Notifier: notifier,
	}
}

func mustRaw(t *testing.T, value any) json.RawMessage {
	t.Helper()
	encoded, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	return encoded
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
