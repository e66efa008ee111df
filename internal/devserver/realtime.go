package devserver

import (
	"context"
	"sync"

	"github.com/shopdeskhq/shopdesk/internal/remote"
)

// Dispatcher fans row-level change events out to the realtime subscribers
// of each owner. Slow subscribers drop events rather than block writes;
// clients recover through the next full reconciliation pass.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan remote.ChangeEvent
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[string]map[int64]*subscriber),
		bufferSize:  16,
	}
}

// Subscribe registers an owner-scoped event stream until ctx ends or the
// cleanup function runs.
func (d *Dispatcher) Subscribe(ctx context.Context, ownerID string) (<-chan remote.ChangeEvent, func()) {
	if ownerID == "" {
		ch := make(chan remote.ChangeEvent)
		close(ch)
		return ch, func() {}
	}
	sub := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan remote.ChangeEvent, d.bufferSize),
	}
	d.register(ownerID, sub)
	cleanup := func() {
		d.unregister(ownerID, sub.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

// Publish delivers an event to every subscriber of the owner.
func (d *Dispatcher) Publish(ownerID string, event remote.ChangeEvent) {
	if ownerID == "" || event.Table == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[ownerID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*subscriber, 0, len(subscribers))
	for _, sub := range subscribers {
		copies = append(copies, sub)
	}
	d.mu.RUnlock()
	for _, sub := range copies {
		select {
		case sub.stream <- event:
		default:
		}
	}
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(ownerID string, sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[ownerID]; !ok {
		d.subscribers[ownerID] = make(map[int64]*subscriber)
	}
	d.subscribers[ownerID][sub.id] = sub
}

func (d *Dispatcher) unregister(ownerID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[ownerID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, ownerID)
		}
	}
	d.mu.Unlock()
}
