package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opencode-ai/opencode/internal/domain/action"
	"github.com/opencode-ai/opencode/internal/domain/effect"
	"github.com/opencode-ai/opencode/internal/eventstore"
	"github.com/opencode-ai/opencode/internal/runtime/dispatcher"
	"github.com/opencode-ai/opencode/internal/runtime/interpreter"
	"github.com/opencode-ai/opencode/pkg/domain"
)

// recordingInterpreter mirrors internal/runtime/actor's test fake: it
// persists EmitEvent effects and publishes them on the dispatcher (the
// same two things the real interpreter does for that effect) and
// immediately resolves CallModel effects so a UserInput completes its
// turn synchronously enough for tests to observe.
type recordingInterpreter struct {
	store eventstore.Store
	disp  *dispatcher.DualChannelDispatcher
	ran   []effect.Effect
}

func (r *recordingInterpreter) Run(ctx context.Context, eff effect.Effect, fb interpreter.Feedback) {
	r.ran = append(r.ran, eff)
	switch e := eff.(type) {
	case effect.EmitEvent:
		_, _ = r.store.Append(ctx, e.Session, e.Event)
		r.disp.DispatchEvent(e.Session, e.Event)
	case effect.CallModel:
		fb(action.NewModelResponseComplete(e.Session, e.OpID, domain.NewMessageID(), nil, 0))
	}
}

func newTestSupervisor(t *testing.T, maxActive int) (*Supervisor, *recordingInterpreter) {
	t.Helper()
	store := eventstore.NewMemory()
	metrics := dispatcher.NewChannelMetrics(prometheus.NewRegistry())
	disp, eventCh := dispatcher.New(metrics)
	interp := &recordingInterpreter{store: store, disp: disp}

	sup, err := New(store, disp, eventCh, interp, maxActive)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(sup.Shutdown)
	return sup, interp
}

func TestCreateSessionSpawnsActiveSession(t *testing.T) {
	sup, _ := newTestSupervisor(t, 10)
	ctx := context.Background()

	session, err := sup.CreateSession(ctx, SessionConfig{Model: "test-model"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if !sup.IsSessionActive(session) {
		t.Fatalf("expected session %s to be active after creation", session)
	}

	exists, err := sup.SessionExists(ctx, session)
	if err != nil || !exists {
		t.Fatalf("expected session to exist in the store, exists=%v err=%v", exists, err)
	}
}

func TestSuspendAndResumeSession(t *testing.T) {
	sup, _ := newTestSupervisor(t, 10)
	ctx := context.Background()

	session, err := sup.CreateSession(ctx, SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := sup.SuspendSession(ctx, session); err != nil {
		t.Fatalf("SuspendSession: %v", err)
	}
	if sup.IsSessionActive(session) {
		t.Fatalf("expected session to be inactive after suspend")
	}

	if err := sup.ResumeSession(ctx, session); err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	if !sup.IsSessionActive(session) {
		t.Fatalf("expected session to be active after resume")
	}
}

func TestDeleteSessionRemovesEventLog(t *testing.T) {
	sup, _ := newTestSupervisor(t, 10)
	ctx := context.Background()

	session, err := sup.CreateSession(ctx, SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := sup.DeleteSession(ctx, session); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if sup.IsSessionActive(session) {
		t.Fatalf("expected deleted session to be inactive")
	}

	exists, err := sup.SessionExists(ctx, session)
	if err != nil {
		t.Fatalf("SessionExists: %v", err)
	}
	if exists {
		t.Fatalf("expected deleted session to no longer exist")
	}

	if err := sup.ResumeSession(ctx, session); err == nil {
		t.Fatalf("expected ResumeSession of a deleted session to fail")
	}
}

func TestDispatchActionAutoResumesSuspendedSession(t *testing.T) {
	sup, _ := newTestSupervisor(t, 10)
	ctx := context.Background()

	session, err := sup.CreateSession(ctx, SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := sup.SuspendSession(ctx, session); err != nil {
		t.Fatalf("SuspendSession: %v", err)
	}

	if _, err := sup.SubmitUserInput(ctx, session, "hello there", 1000); err != nil {
		t.Fatalf("SubmitUserInput: %v", err)
	}
	if !sup.IsSessionActive(session) {
		t.Fatalf("expected DispatchAction to auto-resume the session")
	}
}

func TestDispatchActionUnknownSessionFails(t *testing.T) {
	sup, _ := newTestSupervisor(t, 10)
	ctx := context.Background()

	_, err := sup.SubmitUserInput(ctx, domain.NewSessionID(), "hello", 1)
	if err == nil {
		t.Fatalf("expected dispatch to an unknown session to fail")
	}
}

func TestSubmitUserInputRejectsEmptyText(t *testing.T) {
	sup, _ := newTestSupervisor(t, 10)
	ctx := context.Background()

	session, err := sup.CreateSession(ctx, SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := sup.SubmitUserInput(ctx, session, "   ", 1); err == nil {
		t.Fatalf("expected whitespace-only input to be rejected")
	}
}

func TestLRUEvictsOldestSessionOnOverflow(t *testing.T) {
	sup, _ := newTestSupervisor(t, 1)
	ctx := context.Background()

	first, err := sup.CreateSession(ctx, SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	second, err := sup.CreateSession(ctx, SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if sup.IsSessionActive(first) {
		t.Fatalf("expected the first session to be evicted once the LRU overflowed")
	}
	if !sup.IsSessionActive(second) {
		t.Fatalf("expected the second session to remain active")
	}

	// Eviction must not lose any state: resuming replays the event log.
	if err := sup.ResumeSession(ctx, first); err != nil {
		t.Fatalf("ResumeSession after eviction: %v", err)
	}
}

func TestEvictIdleRemovesStaleSessions(t *testing.T) {
	sup, _ := newTestSupervisor(t, 10)
	ctx := context.Background()

	session, err := sup.CreateSession(ctx, SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	evicted := sup.EvictIdle(1 * time.Nanosecond)
	if evicted != 1 {
		t.Fatalf("expected 1 session evicted, got %d", evicted)
	}
	if sup.IsSessionActive(session) {
		t.Fatalf("expected idle session to be evicted")
	}
}

func TestSubscribeEventsReceivesSessionEvents(t *testing.T) {
	sup, _ := newTestSupervisor(t, 10)
	ctx := context.Background()

	session, err := sup.CreateSession(ctx, SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	sub, err := sup.SubscribeEvents(ctx, session)
	if err != nil {
		t.Fatalf("SubscribeEvents: %v", err)
	}
	defer sub.Close()

	if _, err := sup.SubmitUserInput(ctx, session, "hi", 1); err != nil {
		t.Fatalf("SubmitUserInput: %v", err)
	}

	select {
	case envelope := <-sub.C:
		if envelope.Session != session {
			t.Fatalf("expected envelope for session %s, got %s", session, envelope.Session)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for an event envelope")
	}
}

func TestLoadEventsAfterReturnsPersistedEvents(t *testing.T) {
	sup, _ := newTestSupervisor(t, 10)
	ctx := context.Background()

	session, err := sup.CreateSession(ctx, SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := sup.SubmitUserInput(ctx, session, "hi", 1); err != nil {
		t.Fatalf("SubmitUserInput: %v", err)
	}

	// SessionCreated is sequence 0 and LoadEventsAfter is exclusive, so
	// after=0 returns the events the user input persisted.
	envs, err := sup.LoadEventsAfter(ctx, session, 0)
	if err != nil {
		t.Fatalf("LoadEventsAfter: %v", err)
	}
	if len(envs) == 0 {
		t.Fatalf("expected the events persisted after SessionCreated")
	}
}

func TestListAllAndActiveSessions(t *testing.T) {
	sup, _ := newTestSupervisor(t, 10)
	ctx := context.Background()

	a, err := sup.CreateSession(ctx, SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	b, err := sup.CreateSession(ctx, SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := sup.SuspendSession(ctx, b); err != nil {
		t.Fatalf("SuspendSession: %v", err)
	}

	all, err := sup.ListAllSessions(ctx)
	if err != nil {
		t.Fatalf("ListAllSessions: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 known sessions, got %d", len(all))
	}

	active := sup.ListActiveSessions()
	if len(active) != 1 || active[0] != a {
		t.Fatalf("expected only %s to be active, got %v", a, active)
	}
}

func TestShutdownStopsAllActors(t *testing.T) {
	store := eventstore.NewMemory()
	metrics := dispatcher.NewChannelMetrics(prometheus.NewRegistry())
	disp, eventCh := dispatcher.New(metrics)
	interp := &recordingInterpreter{store: store, disp: disp}

	sup, err := New(store, disp, eventCh, interp, 10)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	session, err := sup.CreateSession(ctx, SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	sup.Shutdown()

	if sup.IsSessionActive(session) {
		t.Fatalf("expected no active sessions after shutdown")
	}
	if _, err := sup.CreateSession(ctx, SessionConfig{}); err == nil {
		t.Fatalf("expected CreateSession to fail after shutdown")
	}
}
