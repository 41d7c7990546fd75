// Package eventstore defines the EventStore contract: the append-only,
// per-session event log every session actor persists through and every
// session manager hydrates from. The interface is the normative part of
// this package; Memory and the SQLite-backed Store are sample
// implementations, matching spec.md §6's framing of persistence beyond
// this contract as out of scope.
//
// Grounded on original_source/crates/steer-core/src/app/domain/runtime/event_store.rs
// and, for the SQLite schema and migration shape, the teacher's own
// internal/storage package (file-based JSON storage under a similar
// path/lock discipline) generalized to a relational log.
package eventstore

import (
	"context"
	"errors"

	"github.com/opencode-ai/opencode/internal/domain/event"
	"github.com/opencode-ai/opencode/pkg/domain"
)

// Errors returned by Store implementations, matching spec.md §6's
// taxonomy (SessionNotFound, Database, Serialization, Connection,
// Migration). Implementations wrap these with fmt.Errorf("...: %w", ...)
// so callers can still errors.Is against the sentinel.
var (
	ErrSessionNotFound = errors.New("eventstore: session not found")
	ErrDatabase        = errors.New("eventstore: database error")
	ErrSerialization   = errors.New("eventstore: serialization error")
	ErrConnection      = errors.New("eventstore: connection error")
	ErrMigration       = errors.New("eventstore: migration error")
)

// Envelope is the durable unit delivered to callers: a persisted event
// paired with the sequence number it was assigned.
type Envelope struct {
	Sequence uint64
	Event    event.SessionEvent
}

// Store is the append-only, per-session event log. Sequence numbers
// start at 0 and increase by exactly 1 per event within a session;
// appends across different sessions carry no ordering guarantee.
type Store interface {
	// Append persists evt for session and returns its assigned sequence
	// number. Returns ErrSessionNotFound if session was never created.
	Append(ctx context.Context, session domain.SessionID, evt event.SessionEvent) (uint64, error)

	// LoadEvents returns every event for session in sequence order.
	LoadEvents(ctx context.Context, session domain.SessionID) ([]Envelope, error)

	// LoadEventsAfter returns events with sequence > after, in order —
	// the mechanism a lagged subscriber uses to catch back up.
	LoadEventsAfter(ctx context.Context, session domain.SessionID, after uint64) ([]Envelope, error)

	// LatestSequence returns the highest persisted sequence number for
	// session, or ok=false if no events have been appended yet.
	LatestSequence(ctx context.Context, session domain.SessionID) (seq uint64, ok bool, err error)

	// CreateSession registers a new, empty session.
	CreateSession(ctx context.Context, session domain.SessionID) error

	// DeleteSession removes a session and every event it owns.
	DeleteSession(ctx context.Context, session domain.SessionID) error

	// SessionExists reports whether session was created and not deleted.
	SessionExists(ctx context.Context, session domain.SessionID) (bool, error)

	// ListSessionIDs returns every known session id, in no particular
	// order.
	ListSessionIDs(ctx context.Context) ([]domain.SessionID, error)

	// Close releases any resources (database handles, file descriptors)
	// held by the store.
	Close() error
}
