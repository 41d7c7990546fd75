package eventstore

import (
	"context"
	"sort"
	"sync"

	"github.com/opencode-ai/opencode/internal/domain/event"
	"github.com/opencode-ai/opencode/pkg/domain"
)

// Memory is an in-process Store backed by a map, used in tests and by
// short-lived tools (e.g. the subagent executor) that don't need
// cross-process durability.
type Memory struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]bool
	events   map[domain.SessionID][]Envelope
}

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[domain.SessionID]bool),
		events:   make(map[domain.SessionID][]Envelope),
	}
}

func (m *Memory) CreateSession(_ context.Context, session domain.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session] = true
	return nil
}

func (m *Memory) DeleteSession(_ context.Context, session domain.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, session)
	delete(m.events, session)
	return nil
}

func (m *Memory) SessionExists(_ context.Context, session domain.SessionID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[session], nil
}

func (m *Memory) ListSessionIDs(_ context.Context) ([]domain.SessionID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]domain.SessionID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Memory) Append(_ context.Context, session domain.SessionID, evt event.SessionEvent) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sessions[session] {
		return 0, ErrSessionNotFound
	}

	existing := m.events[session]
	var seq uint64
	if len(existing) > 0 {
		seq = existing[len(existing)-1].Sequence + 1
	}
	m.events[session] = append(existing, Envelope{Sequence: seq, Event: evt})
	return seq, nil
}

func (m *Memory) LoadEvents(_ context.Context, session domain.SessionID) ([]Envelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Envelope, len(m.events[session]))
	copy(out, m.events[session])
	return out, nil
}

func (m *Memory) LoadEventsAfter(_ context.Context, session domain.SessionID, after uint64) ([]Envelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Envelope
	for _, env := range m.events[session] {
		if env.Sequence > after {
			out = append(out, env)
		}
	}
	return out, nil
}

func (m *Memory) LatestSequence(_ context.Context, session domain.SessionID) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := m.events[session]
	if len(events) == 0 {
		return 0, false, nil
	}
	return events[len(events)-1].Sequence, true, nil
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
