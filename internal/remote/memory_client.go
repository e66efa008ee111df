package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/shopdeskhq/shopdesk/internal/resource"
)

// ErrWriteUnavailable is returned by a MemoryClient configured to reject
// writes, simulating a remote store outage.
var ErrWriteUnavailable = errors.New("remote: write unavailable")

type memoryRow struct {
	id      string
	ownerID string
	payload json.RawMessage
}

type memorySubscriber struct {
	id     int64
	stream chan ChangeEvent
}

// MemoryClient is an in-process remote store used by tests and offline
// development sessions. Writes publish change events to owner-scoped
// subscribers the same way the hosted backend does.
type MemoryClient struct {
	mu          sync.RWMutex
	rows        map[resource.Table][]memoryRow
	subscribers map[string]map[int64]*memorySubscriber
	nextID      int64
	bufferSize  int

	// FailWrites makes every write return ErrWriteUnavailable.
	FailWrites bool
}

// NewMemoryClient constructs an empty in-memory remote store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		rows:        make(map[resource.Table][]memoryRow),
		subscribers: make(map[string]map[int64]*memorySubscriber),
		bufferSize:  16,
	}
}

// Seed loads a row without publishing a change event, mimicking state that
// existed before the session subscribed.
func (c *MemoryClient) Seed(table resource.Table, ownerID string, record json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[table] = append(c.rows[table], memoryRow{
		id:      recordID(record),
		ownerID: ownerID,
		payload: record,
	})
}

// SelectByOwner returns all rows of table belonging to ownerID.
func (c *MemoryClient) SelectByOwner(_ context.Context, table resource.Table, ownerID string) ([]json.RawMessage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []json.RawMessage
	for _, row := range c.rows[table] {
		if row.ownerID == ownerID {
			out = append(out, row.payload)
		}
	}
	return out, nil
}

// Insert writes a new row and publishes an insert event to the owner's
// subscribers.
func (c *MemoryClient) Insert(_ context.Context, table resource.Table, record json.RawMessage) error {
	if c.FailWrites {
		return ErrWriteUnavailable
	}

	ownerID := recordOwner(record)
	c.mu.Lock()
	c.rows[table] = append(c.rows[table], memoryRow{
		id:      recordID(record),
		ownerID: ownerID,
		payload: record,
	})
	c.mu.Unlock()

	c.publish(ownerID, ChangeEvent{Table: table, Action: resource.ActionInsert, Record: record})
	return nil
}

// Update shallow-merges the patch onto the stored row and publishes an
// update event carrying the full merged record.
func (c *MemoryClient) Update(_ context.Context, table resource.Table, id string, patch json.RawMessage) error {
	if c.FailWrites {
		return ErrWriteUnavailable
	}

	var merged json.RawMessage
	var ownerID string

	c.mu.Lock()
	for index, row := range c.rows[table] {
		if row.id != id {
			continue
		}
		next, err := mergeJSON(row.payload, patch)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.rows[table][index].payload = next
		merged = next
		ownerID = row.ownerID
		break
	}
	c.mu.Unlock()

	if merged == nil {
		// The settings singleton is upserted on first write, keyed by its
		// owner.
		if table == resource.TableSettings {
			base := json.RawMessage(fmt.Sprintf(`{"owner_id":%q}`, id))
			next, err := mergeJSON(base, patch)
			if err != nil {
				return err
			}
			c.mu.Lock()
			c.rows[table] = append(c.rows[table], memoryRow{id: id, ownerID: id, payload: next})
			c.mu.Unlock()
			c.publish(id, ChangeEvent{Table: table, Action: resource.ActionUpdate, Record: next})
			return nil
		}
		return fmt.Errorf("remote: row %s/%s not found", table, id)
	}
	c.publish(ownerID, ChangeEvent{Table: table, Action: resource.ActionUpdate, Record: merged})
	return nil
}

// Delete removes a row and publishes a delete event.
func (c *MemoryClient) Delete(_ context.Context, table resource.Table, id string) error {
	if c.FailWrites {
		return ErrWriteUnavailable
	}

	var ownerID string
	found := false

	c.mu.Lock()
	for index, row := range c.rows[table] {
		if row.id == id {
			ownerID = row.ownerID
			c.rows[table] = append(c.rows[table][:index], c.rows[table][index+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()

	if !found {
		return nil
	}
	record, _ := json.Marshal(map[string]string{"id": id})
	c.publish(ownerID, ChangeEvent{Table: table, Action: resource.ActionDelete, Record: record})
	return nil
}

// Subscribe registers an owner-scoped subscriber until ctx ends or the
// stop function runs.
func (c *MemoryClient) Subscribe(ctx context.Context, ownerID string) (<-chan ChangeEvent, func(), error) {
	if ownerID == "" {
		ch := make(chan ChangeEvent)
		close(ch)
		return ch, func() {}, nil
	}

	subscriber := &memorySubscriber{
		stream: make(chan ChangeEvent, c.bufferSize),
	}

	c.mu.Lock()
	c.nextID++
	subscriber.id = c.nextID
	if _, ok := c.subscribers[ownerID]; !ok {
		c.subscribers[ownerID] = make(map[int64]*memorySubscriber)
	}
	c.subscribers[ownerID][subscriber.id] = subscriber
	c.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			// Closing under the write lock excludes publish, which sends
			// while holding the read lock.
			c.mu.Lock()
			subscribers := c.subscribers[ownerID]
			if subscribers != nil {
				delete(subscribers, subscriber.id)
				if len(subscribers) == 0 {
					delete(c.subscribers, ownerID)
				}
			}
			close(subscriber.stream)
			c.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()

	return subscriber.stream, cleanup, nil
}

// publish sends to every subscriber of the owner. The send happens under
// the read lock so it cannot interleave with a teardown closing the stream,
// and stays non-blocking so a slow subscriber drops events instead of
// stalling writes.
func (c *MemoryClient) publish(ownerID string, event ChangeEvent) {
	if ownerID == "" {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, subscriber := range c.subscribers[ownerID] {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

func recordID(record json.RawMessage) string {
	var envelope struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(record, &envelope)
	return envelope.ID
}

func recordOwner(record json.RawMessage) string {
	var envelope struct {
		OwnerID string `json:"owner_id"`
	}
	_ = json.Unmarshal(record, &envelope)
	return envelope.OwnerID
}

func mergeJSON(base, patch json.RawMessage) (json.RawMessage, error) {
	var baseMap map[string]any
	if err := json.Unmarshal(base, &baseMap); err != nil {
		return nil, err
	}
	var patchMap map[string]any
	if err := json.Unmarshal(patch, &patchMap); err != nil {
		return nil, err
	}
	for key, value := range patchMap {
		baseMap[key] = value
	}
	return json.Marshal(baseMap)
}
