package resource

import (
	"errors"
	"fmt"
	"strings"
)

// Table names a synchronized resource collection.
type Table string

const (
	// TableServices holds the bookable service catalog.
	TableServices Table = "services"
	// TableStaff holds staff members available for booking.
	TableStaff Table = "staff"
	// TableAppointments holds customer appointments.
	TableAppointments Table = "appointments"
	// TableSettings holds the per-owner booking settings singleton.
	TableSettings Table = "appointment_settings"
)

// Action enumerates mutation kinds carried by the queue.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidTable indicates an unknown collection name.
	ErrInvalidTable = errors.New("resource: invalid table")
	// ErrInvalidAction indicates an unknown mutation action.
	ErrInvalidAction = errors.New("resource: invalid action")
	// ErrInvalidOwnerID indicates an owner identifier is empty or exceeds storage bounds.
	ErrInvalidOwnerID = errors.New("resource: invalid owner id")
)

// CollectionTables lists the multi-row tables in reconciliation order.
// The settings singleton is merged separately.
func CollectionTables() []Table {
	return []Table{TableServices, TableStaff, TableAppointments}
}

// ParseTable validates a raw collection name.
func ParseTable(raw string) (Table, error) {
	switch Table(strings.TrimSpace(raw)) {
	case TableServices:
		return TableServices, nil
	case TableStaff:
		return TableStaff, nil
	case TableAppointments:
		return TableAppointments, nil
	case TableSettings:
		return TableSettings, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTable, raw)
}

// ParseAction validates a raw mutation action.
func ParseAction(raw string) (Action, error) {
	switch Action(strings.TrimSpace(raw)) {
	case ActionInsert:
		return ActionInsert, nil
	case ActionUpdate:
		return ActionUpdate, nil
	case ActionDelete:
		return ActionDelete, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, raw)
}

// OwnerID represents a validated owner identifier.
type OwnerID string

// NewOwnerID validates raw input and returns an OwnerID.
func NewOwnerID(rawInput string) (OwnerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidOwnerID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidOwnerID, maxIdentifierLength)
	}
	return OwnerID(trimmed), nil
}

// String returns the underlying string identifier.
func (id OwnerID) String() string {
	return string(id)
}
