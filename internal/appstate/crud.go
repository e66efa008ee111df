package appstate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shopdeskhq/shopdesk/internal/resource"
)

const (
	opAddAppointment = "appstate.add_appointment"

	defaultAppointmentStatus = "pending"
	scheduleLayout           = "2006-01-02 15:04"
)

// AppointmentInput describes a booking request. ActorID is the identity
// performing the booking; when it matches the context owner the write is
// optimistic and queued, otherwise it is the public booking flow and goes
// straight to the remote store.
type AppointmentInput struct {
	ActorID       string
	ServiceID     string
	StaffID       string
	CustomerName  string
	CustomerPhone string
	Date          string
	Time          string
}

// AddAppointment books an appointment. Without an owner identity it is a
// no-op returning a nil record. The referenced service's duration sizes
// the slot, defaulting to thirty minutes; start and end are UTC instants
// computed from the requested date and time.
func (c *Context) AddAppointment(ctx context.Context, input AppointmentInput) (*resource.Appointment, error) {
	if c.identity.IsZero() {
		return nil, ErrMissingOwner
	}

	start, err := time.ParseInLocation(scheduleLayout, input.Date+" "+input.Time, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("appstate: invalid appointment schedule: %w", err)
	}
	duration := c.serviceDuration(input.ServiceID)
	end := start.Add(duration)

	id, err := c.ids.NewID()
	if err != nil {
		return nil, err
	}

	record := resource.NormalizeAppointment(resource.Appointment{
		ID:            id,
		OwnerID:       c.identity.ID,
		ServiceID:     input.ServiceID,
		StaffID:       input.StaffID,
		CustomerName:  input.CustomerName,
		CustomerPhone: input.CustomerPhone,
		StartTime:     start.UTC().Format(time.RFC3339),
		EndTime:       end.UTC().Format(time.RFC3339),
		Status:        defaultAppointmentStatus,
	})

	payload, err := resource.EncodeAppointment(record)
	if err != nil {
		return nil, err
	}

	if input.ActorID != c.identity.ID {
		// Public booking: the writer may not have read access to see the
		// row again, so nothing is cached locally and nothing is queued.
		// A failed direct write leaves no partial state behind.
		if c.remote == nil {
			return nil, fmt.Errorf("appstate: remote client required for public booking")
		}
		if err := c.remote.Insert(ctx, resource.TableAppointments, payload); err != nil {
			c.logError(opAddAppointment, "public_booking_write_failed", err,
				zap.String("appointment_id", id))
			return nil, err
		}
		return &record, nil
	}

	c.mu.Lock()
	c.appointments = append(c.appointments, record)
	c.persistLocked()
	c.mu.Unlock()

	c.queue.Enqueue(resource.TableAppointments, resource.ActionInsert, "", payload)
	return &record, nil
}

// UpdateAppointment applies a partial update optimistically, translates
// UI-facing field names to storage names, and queues the translated patch.
// A status change with a contact channel on record triggers a
// notification dispatch.
func (c *Context) UpdateAppointment(id string, updates resource.Patch) error {
	if c.identity.IsZero() {
		return ErrMissingOwner
	}

	c.mu.Lock()
	index := -1
	for i, record := range c.appointments {
		if record.ID == id {
			index = i
			break
		}
	}
	if index < 0 {
		c.mu.Unlock()
		return ErrRecordNotFound
	}

	translated := translateAppointmentPatch(updates)
	previous := c.appointments[index]
	updated := resource.ApplyAppointmentPatch(previous, translated)
	c.appointments[index] = updated
	c.persistLocked()
	c.mu.Unlock()

	c.queue.Enqueue(resource.TableAppointments, resource.ActionUpdate, id, mustEncodePatch(c, translated))

	if newStatus, ok := updates.String("status"); ok && newStatus != previous.Status && updated.CustomerPhone != "" {
		c.notifier.Dispatch(updated.CustomerPhone,
			fmt.Sprintf("Your appointment status is now %s", newStatus))
	}
	return nil
}

// DeleteAppointment removes the appointment optimistically and queues a
// delete mutation with no payload.
func (c *Context) DeleteAppointment(id string) error {
	if c.identity.IsZero() {
		return ErrMissingOwner
	}

	c.mu.Lock()
	for index, record := range c.appointments {
		if record.ID == id {
			c.appointments = append(c.appointments[:index], c.appointments[index+1:]...)
			break
		}
	}
	c.persistLocked()
	c.mu.Unlock()

	c.queue.Enqueue(resource.TableAppointments, resource.ActionDelete, id, nil)
	return nil
}

// ServiceInput describes a new catalog service.
type ServiceInput struct {
	Name            string
	DurationMinutes int
	PriceCents      int64
}

// AddService creates a service optimistically and queues the insert.
func (c *Context) AddService(input ServiceInput) (*resource.Service, error) {
	if c.identity.IsZero() {
		return nil, ErrMissingOwner
	}

	id, err := c.ids.NewID()
	if err != nil {
		return nil, err
	}
	record := resource.Service{
		ID:              id,
		OwnerID:         c.identity.ID,
		Name:            input.Name,
		DurationMinutes: input.DurationMinutes,
		PriceCents:      input.PriceCents,
	}
	payload, err := resource.EncodeService(record)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.services = append(c.services, record)
	c.persistLocked()
	c.mu.Unlock()

	c.queue.Enqueue(resource.TableServices, resource.ActionInsert, "", payload)
	return &record, nil
}

// UpdateService applies a partial update optimistically and queues it.
func (c *Context) UpdateService(id string, updates resource.Patch) error {
	if c.identity.IsZero() {
		return ErrMissingOwner
	}

	c.mu.Lock()
	index := -1
	for i, record := range c.services {
		if record.ID == id {
			index = i
			break
		}
	}
	if index < 0 {
		c.mu.Unlock()
		return ErrRecordNotFound
	}
	c.services[index] = resource.ApplyServicePatch(c.services[index], updates)
	c.persistLocked()
	c.mu.Unlock()

	c.queue.Enqueue(resource.TableServices, resource.ActionUpdate, id, mustEncodePatch(c, updates))
	return nil
}

// DeleteService removes the service optimistically and queues the delete.
func (c *Context) DeleteService(id string) error {
	if c.identity.IsZero() {
		return ErrMissingOwner
	}

	c.mu.Lock()
	for index, record := range c.services {
		if record.ID == id {
			c.services = append(c.services[:index], c.services[index+1:]...)
			break
		}
	}
	c.persistLocked()
	c.mu.Unlock()

	c.queue.Enqueue(resource.TableServices, resource.ActionDelete, id, nil)
	return nil
}

// StaffInput describes a new staff member. Name is the UI-facing field;
// it is mirrored into the storage full_name column with both kept
// populated so readers of either name keep working.
type StaffInput struct {
	Name string
	Role string
}

// AddStaff creates a staff member optimistically and queues the insert.
func (c *Context) AddStaff(input StaffInput) (*resource.Staff, error) {
	if c.identity.IsZero() {
		return nil, ErrMissingOwner
	}

	id, err := c.ids.NewID()
	if err != nil {
		return nil, err
	}
	record := resource.NormalizeStaff(resource.Staff{
		ID:          id,
		OwnerID:     c.identity.ID,
		DisplayName: input.Name,
		FullName:    input.Name,
		Role:        input.Role,
	})
	payload, err := resource.EncodeStaff(record)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.staff = append(c.staff, record)
	c.persistLocked()
	c.mu.Unlock()

	c.queue.Enqueue(resource.TableStaff, resource.ActionInsert, "", payload)
	return &record, nil
}

// DeleteStaff removes the staff member optimistically and queues the delete.
func (c *Context) DeleteStaff(id string) error {
	if c.identity.IsZero() {
		return ErrMissingOwner
	}

	c.mu.Lock()
	for index, record := range c.staff {
		if record.ID == id {
			c.staff = append(c.staff[:index], c.staff[index+1:]...)
			break
		}
	}
	c.persistLocked()
	c.mu.Unlock()

	c.queue.Enqueue(resource.TableStaff, resource.ActionDelete, id, nil)
	return nil
}

// UpdateSettings shallow-merges the partial update into the settings
// singleton, translates the per-day schedule into the storage breaks
// envelope, and queues a single update mutation with no target id.
func (c *Context) UpdateSettings(partial resource.Patch) error {
	if c.identity.IsZero() {
		return ErrMissingOwner
	}

	c.mu.Lock()
	c.settings = resource.ApplySettingsPatch(c.settings, partial)
	translated := resource.TranslateSettingsPatch(partial, c.settings)
	c.persistLocked()
	c.mu.Unlock()

	c.queue.Enqueue(resource.TableSettings, resource.ActionUpdate, "", mustEncodePatch(c, translated))
	return nil
}

// serviceDuration resolves the slot length for a service id, defaulting
// when the service is unknown or carries no duration.
func (c *Context) serviceDuration(serviceID string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, service := range c.services {
		if service.ID == serviceID && service.DurationMinutes > 0 {
			return time.Duration(service.DurationMinutes) * time.Minute
		}
	}
	return resource.DefaultServiceDuration
}

// translateAppointmentPatch rewrites UI field names into storage names:
// date and time combine into the stored start instant only when both are
// present.
func translateAppointmentPatch(updates resource.Patch) resource.Patch {
	out := updates.Clone()
	date, hasDate := out.String("date")
	timeOfDay, hasTime := out.String("time")
	if hasDate && hasTime {
		if start, err := time.ParseInLocation(scheduleLayout, date+" "+timeOfDay, time.UTC); err == nil {
			out["start_time"] = start.Format(time.RFC3339)
			delete(out, "date")
			delete(out, "time")
		}
	}
	return out
}

func mustEncodePatch(c *Context, patch resource.Patch) []byte {
	encoded, err := patch.Encode()
	if err != nil {
		c.logger.Error("patch encode failed", zap.Error(err))
		return []byte("{}")
	}
	return encoded
}

func (c *Context) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	c.logger.Error("appstate error", attrs...)
}
