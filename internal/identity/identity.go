// Package identity models the authenticated owner supplied by the outer
// authentication layer. The sync core never runs reconciliation for a
// partially initialized identity or a demo session.
package identity

import "strings"

// SessionKind distinguishes demo sessions from real backend sessions.
type SessionKind string

const (
	// SessionMock is a demo/offline-only identity that never touches the
	// remote store.
	SessionMock SessionKind = "mock"
	// SessionCloud is a real backend session.
	SessionCloud SessionKind = "cloud"
)

// Identity is the owner whose resources are being read and written.
// Skeleton marks a partially initialized session still missing its full
// profile and permission context.
type Identity struct {
	ID          string
	DisplayName string
	Skeleton    bool
	Session     SessionKind
}

// IsZero reports whether no identity is present.
func (i Identity) IsZero() bool {
	return strings.TrimSpace(i.ID) == ""
}

// CanReconcile reports whether remote reconciliation may run. Acting on a
// skeleton identity risks permission-race failures, and mock sessions stay
// local-only, so both are excluded.
func (i Identity) CanReconcile() bool {
	return !i.IsZero() && !i.Skeleton && i.Session == SessionCloud
}
