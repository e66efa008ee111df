// Package appstate holds the merged, authoritative in-memory view per
// resource collection for one owner. It owns the lifecycle from cached
// local state through remote reconciliation to live incremental updates,
// and exposes the optimistic CRUD surface the UI layers call.
package appstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shopdeskhq/shopdesk/internal/identity"
	"github.com/shopdeskhq/shopdesk/internal/localstore"
	"github.com/shopdeskhq/shopdesk/internal/notify"
	"github.com/shopdeskhq/shopdesk/internal/reconcile"
	"github.com/shopdeskhq/shopdesk/internal/remote"
	"github.com/shopdeskhq/shopdesk/internal/resource"
	"github.com/shopdeskhq/shopdesk/internal/syncqueue"
)

// Phase tracks the per-owner lifecycle of the state holder.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseLocalLoaded   Phase = "local_loaded"
	PhaseReconciled    Phase = "reconciled"
	PhaseLive          Phase = "live"
)

var (
	// ErrMissingOwner indicates a mutating call ran without an owner identity.
	ErrMissingOwner = errors.New("appstate: owner identity required")
	// ErrRecordNotFound indicates the targeted record is not in the snapshot.
	ErrRecordNotFound = errors.New("appstate: record not found")
	// ErrMissingQueue indicates the context was built without a mutation queue.
	ErrMissingQueue = errors.New("appstate: mutation queue is required")
	// ErrMissingStore indicates the context was built without a cache store.
	ErrMissingStore = errors.New("appstate: cache store is required")

	noOpLogger = zap.NewNop()
)

// ContextConfig describes the collaborators the state holder depends on.
type ContextConfig struct {
	Identity   identity.Identity
	Store      *localstore.Store
	Queue      *syncqueue.Service
	Remote     remote.Client
	Notifier   notify.Dispatcher
	Logger     *zap.Logger
	Clock      func() time.Time
	IDProvider IDProvider
}

// Context is the per-owner resource state holder.
type Context struct {
	mu       sync.Mutex
	identity identity.Identity
	store    *localstore.Store
	queue    *syncqueue.Service
	remote   remote.Client
	notifier notify.Dispatcher
	logger   *zap.Logger
	clock    func() time.Time
	ids      IDProvider

	phase        Phase
	appointments []resource.Appointment
	services     []resource.Service
	staff        []resource.Staff
	settings     resource.BookingSettings

	unsubscribe func()
}

// NewContext constructs the state holder. It performs no I/O; call
// LoadLocal to surface cached state.
func NewContext(cfg ContextConfig) (*Context, error) {
	if cfg.Store == nil {
		return nil, ErrMissingStore
	}
	if cfg.Queue == nil {
		return nil, ErrMissingQueue
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewLogDispatcher(logger)
	}

	return &Context{
		identity: cfg.Identity,
		store:    cfg.Store,
		queue:    cfg.Queue,
		remote:   cfg.Remote,
		notifier: notifier,
		logger:   logger,
		clock:    clock,
		ids:      ids,
		phase:    PhaseUninitialized,
	}, nil
}

// Phase reports the current lifecycle phase.
func (c *Context) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Appointments returns a copy of the merged appointment snapshot.
func (c *Context) Appointments() []resource.Appointment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]resource.Appointment, len(c.appointments))
	copy(out, c.appointments)
	return out
}

// Services returns a copy of the merged service snapshot.
func (c *Context) Services() []resource.Service {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]resource.Service, len(c.services))
	copy(out, c.services)
	return out
}

// Staff returns a copy of the merged staff snapshot.
func (c *Context) Staff() []resource.Staff {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]resource.Staff, len(c.staff))
	copy(out, c.staff)
	return out
}

// Settings returns the merged settings singleton.
func (c *Context) Settings() resource.BookingSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// SyncStatus combines lifecycle phase with the queue's observability view.
type SyncStatus struct {
	Phase Phase
	Queue syncqueue.QueueStatus
}

// SyncStatus reports the current sync surface for UI indicators.
func (c *Context) SyncStatus() SyncStatus {
	return SyncStatus{
		Phase: c.Phase(),
		Queue: c.queue.Status(),
	}
}

// LoadLocal surfaces the last durable snapshots immediately so the UI
// never blocks on the network. A corrupt cache entry is logged and
// treated as absent.
func (c *Context) LoadLocal() {
	if c.identity.IsZero() {
		return
	}
	owner := c.identity.ID

	c.mu.Lock()
	defer c.mu.Unlock()

	c.appointments = loadSnapshot[resource.Appointment](c, resource.TableAppointments, owner)
	c.services = loadSnapshot[resource.Service](c, resource.TableServices, owner)
	c.staff = loadSnapshot[resource.Staff](c, resource.TableStaff, owner)
	c.settings = c.loadSettingsSnapshot(owner)
	c.phase = PhaseLocalLoaded
}

func loadSnapshot[R any](c *Context, table resource.Table, owner string) []R {
	stored, found, err := c.store.Get(localstore.SnapshotKey(table, owner))
	if err != nil {
		c.logger.Error("snapshot read failed",
			zap.String("table", string(table)), zap.Error(err))
		return nil
	}
	if !found || stored == "" {
		return nil
	}
	var records []R
	if err := json.Unmarshal([]byte(stored), &records); err != nil {
		c.logger.Error("snapshot cache is malformed, treating as absent",
			zap.String("table", string(table)), zap.Error(err))
		return nil
	}
	return records
}

func (c *Context) loadSettingsSnapshot(owner string) resource.BookingSettings {
	stored, found, err := c.store.Get(localstore.SnapshotKey(resource.TableSettings, owner))
	if err != nil || !found || stored == "" {
		if err != nil {
			c.logger.Error("settings snapshot read failed", zap.Error(err))
		}
		return resource.BookingSettings{}
	}
	settings, err := resource.DecodeSettings(json.RawMessage(stored))
	if err != nil {
		c.logger.Error("settings cache is malformed, treating as absent", zap.Error(err))
		return resource.BookingSettings{}
	}
	return settings
}

type remoteFetch struct {
	rows  []json.RawMessage
	known bool
}

// Reconcile fetches the remote snapshot for every table concurrently,
// merges each against the pending queue and the previous local snapshot,
// commits the result, and persists it back to the cache. It refuses to
// run for skeleton identities and mock sessions.
func (c *Context) Reconcile(ctx context.Context) error {
	if !c.identity.CanReconcile() {
		c.logger.Debug("skipping reconciliation",
			zap.Bool("skeleton", c.identity.Skeleton),
			zap.String("session", string(c.identity.Session)))
		return nil
	}
	if c.remote == nil {
		return fmt.Errorf("appstate: remote client is required for reconciliation")
	}
	owner := c.identity.ID

	tables := append(resource.CollectionTables(), resource.TableSettings)
	fetches := make(map[resource.Table]*remoteFetch, len(tables))
	var wg sync.WaitGroup
	var fetchMu sync.Mutex

	for _, table := range tables {
		wg.Add(1)
		go func(table resource.Table) {
			defer wg.Done()
			rows, err := c.remote.SelectByOwner(ctx, table, owner)
			fetch := &remoteFetch{rows: rows, known: err == nil}
			if err != nil {
				c.logger.Warn("remote snapshot fetch failed, degrading to local state",
					zap.String("table", string(table)), zap.Error(err))
			}
			fetchMu.Lock()
			fetches[table] = fetch
			fetchMu.Unlock()
		}(table)
	}
	wg.Wait()

	c.mu.Lock()
	c.appointments = mergeFetched(c, reconcile.AppointmentCodec(), fetches[resource.TableAppointments], c.appointments)
	c.services = mergeFetched(c, reconcile.ServiceCodec(), fetches[resource.TableServices], c.services)
	c.staff = mergeFetched(c, reconcile.StaffCodec(), fetches[resource.TableStaff], c.staff)
	c.settings = c.mergeFetchedSettings(fetches[resource.TableSettings])
	c.phase = PhaseReconciled
	c.persistLocked()
	c.mu.Unlock()

	return nil
}

func mergeFetched[R any](c *Context, codec reconcile.Codec[R], fetch *remoteFetch, local []R) []R {
	input := reconcile.CollectionInput[R]{Local: local}
	if fetch != nil && fetch.known {
		input.RemoteKnown = true
		input.Remote = decodeRemoteRows(c, codec, fetch.rows)
	}
	input.Queue = c.queue.Pending(codec.Table)
	input.OnDecodeError = func(mutation resource.Mutation, err error) {
		c.logger.Warn("skipping undecodable queued mutation",
			zap.String("table", string(mutation.Table)),
			zap.String("action", string(mutation.Action)),
			zap.Int64("seq", mutation.Seq),
			zap.Error(err))
	}
	return reconcile.MergeCollection(codec, input)
}

// decodeRemoteRows parses remote rows and stamps them confirmed: anything
// read back from the remote store has completed its round trip.
func decodeRemoteRows[R any](c *Context, codec reconcile.Codec[R], rows []json.RawMessage) []R {
	out := make([]R, 0, len(rows))
	for _, row := range rows {
		record, err := codec.Decode(row)
		if err != nil {
			c.logger.Warn("discarding undecodable remote row",
				zap.String("table", string(codec.Table)), zap.Error(err))
			continue
		}
		out = append(out, confirm(codec, record))
	}
	return out
}

func confirm[R any](codec reconcile.Codec[R], record R) R {
	patch := resource.Patch{"confirmed": true}
	return codec.Apply(record, patch)
}

func (c *Context) mergeFetchedSettings(fetch *remoteFetch) resource.BookingSettings {
	input := reconcile.SettingsInput{
		Local: c.settings,
		Queue: c.queue.Pending(resource.TableSettings),
	}
	if fetch != nil && fetch.known && len(fetch.rows) > 0 {
		row, err := resource.DecodeSettingsRow(fetch.rows[0])
		if err != nil {
			c.logger.Warn("discarding undecodable remote settings row", zap.Error(err))
		} else {
			input.Remote = &row
		}
	}
	return reconcile.MergeSettings(input)
}

// persistLocked writes every snapshot back to the durable cache. The
// store refuses empty-over-rich overwrites.
func (c *Context) persistLocked() {
	owner := c.identity.ID
	if owner == "" {
		return
	}
	persistSnapshot(c, resource.TableAppointments, owner, c.appointments)
	persistSnapshot(c, resource.TableServices, owner, c.services)
	persistSnapshot(c, resource.TableStaff, owner, c.staff)
	c.persistSettingsLocked(owner)
}

func persistSnapshot[R any](c *Context, table resource.Table, owner string, records []R) {
	encoded, err := json.Marshal(records)
	if err != nil {
		c.logger.Error("snapshot encode failed",
			zap.String("table", string(table)), zap.Error(err))
		return
	}
	if err := c.store.SaveSnapshot(table, owner, string(encoded)); err != nil {
		c.logger.Error("snapshot persist failed",
			zap.String("table", string(table)), zap.Error(err))
	}
}

func (c *Context) persistSettingsLocked(owner string) {
	encoded, err := resource.EncodeSettings(c.settings)
	if err != nil {
		c.logger.Error("settings encode failed", zap.Error(err))
		return
	}
	if err := c.store.SaveSnapshot(resource.TableSettings, owner, string(encoded)); err != nil {
		c.logger.Error("settings persist failed", zap.Error(err))
	}
}

// Close tears down the realtime subscription, if any.
func (c *Context) Close() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}
