// Package store persists session records and their state transitions.
package store

import (
	"context"
	"time"

	"github.com/commandAGI/deviced/internal/session"
)

// SessionRecord is the persisted view of one session.
type SessionRecord struct {
	ID        string
	Name      string
	State     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transition is one recorded state change.
type Transition struct {
	SessionID string
	From      string
	To        string
	At        time.Time
}

// Repository defines the persistence surface for session lifecycle data.
// Its RecordTransition method satisfies session.Recorder.
type Repository interface {
	// RecordTransition upserts the session row and appends to the
	// transition audit log.
	RecordTransition(ctx context.Context, sessionID, name string, from, to session.State) error

	// GetSession retrieves a session record, or nil if unknown.
	GetSession(ctx context.Context, sessionID string) (*SessionRecord, error)

	// ListTransitions returns a session's transitions oldest first.
	ListTransitions(ctx context.Context, sessionID string) ([]Transition, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
