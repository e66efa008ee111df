package appstate

import (
	"context"

	"go.uber.org/zap"

	"github.com/shopdeskhq/shopdesk/internal/reconcile"
	"github.com/shopdeskhq/shopdesk/internal/remote"
	"github.com/shopdeskhq/shopdesk/internal/resource"
)

// Subscribe opens the owner-scoped realtime feed and starts the single
// consumer loop applying events incrementally. The subscription is torn
// down when ctx ends, when Close is called, or when the owning identity
// goes away. Mock sessions never subscribe.
func (c *Context) Subscribe(ctx context.Context) error {
	if !c.identity.CanReconcile() || c.remote == nil {
		return nil
	}

	events, stop, err := c.remote.Subscribe(ctx, c.identity.ID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.unsubscribe = stop
	c.phase = PhaseLive
	c.mu.Unlock()

	go func() {
		for event := range events {
			c.ApplyEvent(event)
		}
	}()
	return nil
}

// ApplyEvent folds one realtime change into the in-memory snapshot
// without re-running full reconciliation. Application is idempotent:
// duplicate inserts are ignored, updates and deletes key off the record
// id, so at-least-once and out-of-order delivery are safe.
func (c *Context) ApplyEvent(event remote.ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch event.Table {
	case resource.TableAppointments:
		c.appointments = applyCollectionEvent(c, reconcile.AppointmentCodec(), c.appointments, event)
	case resource.TableServices:
		c.services = applyCollectionEvent(c, reconcile.ServiceCodec(), c.services, event)
	case resource.TableStaff:
		c.staff = applyCollectionEvent(c, reconcile.StaffCodec(), c.staff, event)
	case resource.TableSettings:
		c.applySettingsEventLocked(event)
	default:
		c.logger.Warn("ignoring event for unknown table",
			zap.String("table", string(event.Table)))
		return
	}
	c.persistLocked()
}

func applyCollectionEvent[R any](c *Context, codec reconcile.Codec[R], records []R, event remote.ChangeEvent) []R {
	switch event.Action {
	case resource.ActionInsert, resource.ActionUpdate:
		record, err := codec.Decode(event.Record)
		if err != nil {
			c.logger.Warn("discarding undecodable event payload",
				zap.String("table", string(codec.Table)),
				zap.String("action", string(event.Action)),
				zap.Error(err))
			return records
		}
		record = confirm(codec, record)
		id := codec.ID(record)
		index := indexByID(codec, records, id)

		if event.Action == resource.ActionInsert {
			// Optimistic inserts echo back from the server; presence means
			// the record is already known.
			if index >= 0 {
				records[index] = confirm(codec, records[index])
				return records
			}
			return append(records, codec.Normalize(record))
		}

		// Update events replace the record outright: by the time the
		// server pushes an update it is authoritative for the full row.
		if index < 0 {
			return records
		}
		records[index] = codec.Normalize(record)
		return records

	case resource.ActionDelete:
		id := event.RecordID()
		index := indexByID(codec, records, id)
		if index < 0 {
			return records
		}
		return append(records[:index], records[index+1:]...)
	}
	return records
}

func (c *Context) applySettingsEventLocked(event remote.ChangeEvent) {
	if event.Action == resource.ActionDelete {
		c.settings = resource.BookingSettings{}
		return
	}
	settings, err := resource.DecodeSettings(event.Record)
	if err != nil {
		c.logger.Warn("discarding undecodable settings event", zap.Error(err))
		return
	}
	c.settings = settings
}

func indexByID[R any](codec reconcile.Codec[R], records []R, id string) int {
	if id == "" {
		return -1
	}
	for index, record := range records {
		if codec.ID(record) == id {
			return index
		}
	}
	return -1
}
