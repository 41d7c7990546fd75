// Package supervisor owns the active-session LRU and the map from
// SessionID to a running session actor: it is the only entry point
// callers (an RPC layer, a CLI, tests) use to create, resume, suspend,
// or delete sessions, or to route an Action/subscription to the actor
// that owns a session's state.
//
// Grounded on
// original_source/crates/steer-core/src/app/domain/runtime/supervisor.rs
// and .../runtime/managed_session.rs, adapted to Go: the Rust original
// drives a single supervisor task reached over an mpsc command channel;
// here a mutex-guarded map serves the same serialization purpose without
// needing a second actor loop, since golang-lru/v2's Cache is already
// safe for concurrent use and every mutating operation below holds the
// same mutex for its duration.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/opencode-ai/opencode/internal/domain/action"
	"github.com/opencode-ai/opencode/internal/domain/delta"
	"github.com/opencode-ai/opencode/internal/domain/event"
	"github.com/opencode-ai/opencode/internal/domain/state"
	"github.com/opencode-ai/opencode/internal/eventstore"
	"github.com/opencode-ai/opencode/internal/runtime/actor"
	"github.com/opencode-ai/opencode/internal/runtime/dispatcher"
	"github.com/opencode-ai/opencode/pkg/domain"
	"github.com/opencode-ai/opencode/pkg/domain/conversation"
)

// Errors the supervisor returns, matching spec.md §6/§7's taxonomy.
var (
	ErrSessionNotFound      = errors.New("supervisor: session not found")
	ErrInvalidInput         = errors.New("supervisor: invalid input")
	ErrShuttingDown         = errors.New("supervisor: shutting down")
	ErrSessionAlreadyExists = errors.New("supervisor: session already exists")
)

// defaultMaxActiveSessions bounds the in-memory LRU of hydrated
// sessions. spec.md §4.6 allows 10 or 100 depending on deployment;
// DESIGN.md picks the smaller default and lets callers override it via
// Config, matching a single-node deployment rather than a fleet.
const defaultMaxActiveSessions = 10

// defaultIdleTimeout is the window EvictIdle uses when callers don't
// specify their own.
const defaultIdleTimeout = 5 * time.Minute

// SessionConfig seeds a newly created session: the model it starts on,
// free-form metadata recorded in the durable SessionCreated event, and
// any tools/bash patterns that should start pre-approved rather than
// prompting on first use — how internal/runtime/subagent seeds a child
// session from its agent profile's permission posture. Workspace/tool
// configuration lives one layer up (interpreter.New's workDir/
// mcpConfigs), since those are shared across every session a single
// process supervises rather than varying per session in this runtime's
// scope.
type SessionConfig struct {
	Model                   string
	Metadata                map[string]string
	PreApprovedTools        []string
	PreApprovedBashPatterns []string
}

// Interpreter is the subset of interpreter.Interpreter an Actor needs,
// re-declared here (rather than imported) so this package only depends
// on the actor package's own narrow view of it.
type Interpreter = actor.Interpreter

// managedSession pairs a running actor with the bookkeeping the
// supervisor needs to evict it: its own cancellable context and the
// last time any command touched it.
type managedSession struct {
	actor        *actor.Actor
	cancel       context.CancelFunc
	mu           sync.Mutex
	lastActivity time.Time
}

func (m *managedSession) touch() {
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

func (m *managedSession) idleSince() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// Subscription is a live, per-session feed of durable event envelopes.
// Close unregisters it; callers that detect a gap (the channel was full
// and an envelope was dropped) recover via LoadEventsAfter.
type Subscription struct {
	C    <-chan dispatcher.SessionEventEnvelope
	stop func()
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	if s.stop != nil {
		s.stop()
	}
}

// Supervisor manages the active-session LRU, hydrating sessions from the
// event log on demand and exposing create/suspend/resume/delete.
type Supervisor struct {
	store      eventstore.Store
	dispatcher *dispatcher.DualChannelDispatcher
	interp     Interpreter

	mu       sync.Mutex
	sessions *lru.Cache[domain.SessionID, *managedSession]
	closed   bool

	subMu sync.Mutex
	subs  map[domain.SessionID]map[int]chan dispatcher.SessionEventEnvelope
	subID int

	fanoutDone chan struct{}
}

// New builds a Supervisor. maxActive <= 0 uses defaultMaxActiveSessions.
func New(store eventstore.Store, disp *dispatcher.DualChannelDispatcher, eventCh <-chan dispatcher.SessionEventEnvelope, interp Interpreter, maxActive int) (*Supervisor, error) {
	if maxActive <= 0 {
		maxActive = defaultMaxActiveSessions
	}

	sup := &Supervisor{
		store:      store,
		dispatcher: disp,
		interp:     interp,
		subs:       make(map[domain.SessionID]map[int]chan dispatcher.SessionEventEnvelope),
		fanoutDone: make(chan struct{}),
	}

	cache, err := lru.NewWithEvict[domain.SessionID, *managedSession](maxActive, sup.onEvict)
	if err != nil {
		return nil, fmt.Errorf("supervisor: new lru: %w", err)
	}
	sup.sessions = cache

	go sup.fanout(eventCh)

	return sup, nil
}

// fanout reads every persisted envelope off the shared dispatcher event
// channel and republishes it to whichever per-session subscriber
// channels are currently registered. A full subscriber channel is
// skipped rather than blocked on, matching the dispatcher's own
// lossy-under-load, recoverable-via-replay contract.
func (sup *Supervisor) fanout(eventCh <-chan dispatcher.SessionEventEnvelope) {
	defer close(sup.fanoutDone)
	for envelope := range eventCh {
		sup.subMu.Lock()
		for _, ch := range sup.subs[envelope.Session] {
			select {
			case ch <- envelope:
			default:
			}
		}
		sup.subMu.Unlock()
	}
}

// onEvict is the LRU's eviction callback: stopping the actor discards
// its in-memory state, which is always safe since every state-relevant
// change was already persisted (spec.md §4.6).
func (sup *Supervisor) onEvict(_ domain.SessionID, ms *managedSession) {
	ms.actor.Stop()
	ms.cancel()
}

// CreateSession registers a brand-new session, persists its
// SessionCreated event, and spawns its actor.
func (sup *Supervisor) CreateSession(ctx context.Context, cfg SessionConfig) (domain.SessionID, error) {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	if sup.closed {
		return "", ErrShuttingDown
	}

	session := domain.NewSessionID()
	if err := sup.store.CreateSession(ctx, session); err != nil {
		return "", fmt.Errorf("supervisor: create session: %w", err)
	}

	evt := event.SessionCreated{Metadata: cfg.Metadata}
	if _, err := sup.store.Append(ctx, session, evt); err != nil {
		return "", fmt.Errorf("supervisor: persist SessionCreated: %w", err)
	}
	sup.dispatcher.DispatchEvent(session, evt)

	ms, err := sup.spawnNew(ctx, session, cfg)
	if err != nil {
		return "", err
	}
	sup.sessions.Add(session, ms)

	return session, nil
}

// ResumeSession ensures session has a running actor, hydrating it from
// the event log if it isn't already active. Idempotent.
func (sup *Supervisor) ResumeSession(ctx context.Context, session domain.SessionID) error {
	_, err := sup.getOrHydrate(ctx, session)
	return err
}

// SuspendSession stops session's actor and discards its in-memory
// state; replaying the event log later (ResumeSession, or an implicit
// resume from DispatchAction) restores it.
func (sup *Supervisor) SuspendSession(_ context.Context, session domain.SessionID) error {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	if sup.sessions.Contains(session) {
		sup.sessions.Remove(session)
	}
	return nil
}

// DeleteSession tears down session's actor (if active) and removes its
// entire event log. Irreversible.
func (sup *Supervisor) DeleteSession(ctx context.Context, session domain.SessionID) error {
	sup.mu.Lock()
	if sup.sessions.Contains(session) {
		// Remove triggers onEvict, which stops the actor and cancels its
		// context; no need to repeat that here.
		sup.sessions.Remove(session)
	}
	sup.mu.Unlock()

	if err := sup.store.DeleteSession(ctx, session); err != nil {
		return fmt.Errorf("supervisor: delete session: %w", err)
	}
	return nil
}

// DispatchAction routes act to session's actor, auto-resuming the
// session from its event log first if it isn't currently active.
func (sup *Supervisor) DispatchAction(ctx context.Context, session domain.SessionID, act action.Action) error {
	ms, err := sup.getOrHydrate(ctx, session)
	if err != nil {
		return err
	}
	ms.touch()
	return ms.actor.Dispatch(ctx, act)
}

// GetState returns a read-only snapshot of session's AppState,
// auto-resuming it first if necessary.
func (sup *Supervisor) GetState(ctx context.Context, session domain.SessionID) (*state.AppState, error) {
	ms, err := sup.getOrHydrate(ctx, session)
	if err != nil {
		return nil, err
	}
	ms.touch()
	return ms.actor.State(ctx)
}

// SubscribeEvents registers a per-session feed of durable event
// envelopes, auto-resuming the session first if necessary.
func (sup *Supervisor) SubscribeEvents(ctx context.Context, session domain.SessionID) (*Subscription, error) {
	if _, err := sup.getOrHydrate(ctx, session); err != nil {
		return nil, err
	}

	ch := make(chan dispatcher.SessionEventEnvelope, 64)

	sup.subMu.Lock()
	if sup.subs[session] == nil {
		sup.subs[session] = make(map[int]chan dispatcher.SessionEventEnvelope)
	}
	sup.subID++
	id := sup.subID
	sup.subs[session][id] = ch
	sup.subMu.Unlock()

	stop := func() {
		sup.subMu.Lock()
		delete(sup.subs[session], id)
		if len(sup.subs[session]) == 0 {
			delete(sup.subs, session)
		}
		sup.subMu.Unlock()
		close(ch)
	}

	return &Subscription{C: ch, stop: stop}, nil
}

// SubscribeDeltas returns the shared stream of StreamDeltas across every
// session; callers filter by OpID/session, matching §4.6's single
// broadcast channel (the delta side is never per-session).
func (sup *Supervisor) SubscribeDeltas(ctx context.Context) (<-chan delta.StreamDelta, error) {
	return sup.dispatcher.SubscribeDeltas(ctx)
}

// Dispatcher exposes the shared dispatcher so callers can subscribe to
// deltas (which are never keyed per session) without this package
// needing to re-export delta.StreamDelta's type.
func (sup *Supervisor) Dispatcher() *dispatcher.DualChannelDispatcher {
	return sup.dispatcher
}

// LoadEventsAfter returns every event session has persisted with
// sequence > after, the mechanism a lagged subscriber uses to recover.
func (sup *Supervisor) LoadEventsAfter(ctx context.Context, session domain.SessionID, after uint64) ([]eventstore.Envelope, error) {
	exists, err := sup.store.SessionExists(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("supervisor: session exists: %w", err)
	}
	if !exists {
		return nil, ErrSessionNotFound
	}
	return sup.store.LoadEventsAfter(ctx, session, after)
}

// ListActiveSessions returns the ids of sessions currently hydrated in
// the LRU.
func (sup *Supervisor) ListActiveSessions() []domain.SessionID {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	return sup.sessions.Keys()
}

// IsSessionActive reports whether session currently has a running actor.
func (sup *Supervisor) IsSessionActive(session domain.SessionID) bool {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	return sup.sessions.Contains(session)
}

// ListAllSessions returns every session id the event store knows about,
// active or not.
func (sup *Supervisor) ListAllSessions(ctx context.Context) ([]domain.SessionID, error) {
	return sup.store.ListSessionIDs(ctx)
}

// SessionExists reports whether session was created and not deleted.
func (sup *Supervisor) SessionExists(ctx context.Context, session domain.SessionID) (bool, error) {
	return sup.store.SessionExists(ctx, session)
}

// EvictIdle removes every active session whose last touched time exceeds
// timeout. Eviction is always safe: every state-relevant change is
// already durable. timeout <= 0 uses defaultIdleTimeout.
func (sup *Supervisor) EvictIdle(timeout time.Duration) int {
	if timeout <= 0 {
		timeout = defaultIdleTimeout
	}

	sup.mu.Lock()
	defer sup.mu.Unlock()

	cutoff := time.Now().Add(-timeout)
	evicted := 0
	for _, session := range sup.sessions.Keys() {
		ms, ok := sup.sessions.Peek(session)
		if !ok {
			continue
		}
		if ms.idleSince().Before(cutoff) {
			sup.sessions.Remove(session)
			evicted++
		}
	}
	return evicted
}

// Shutdown stops every active actor and closes the dispatcher's delta
// pub/sub. The supervisor rejects new work after this returns.
func (sup *Supervisor) Shutdown() {
	sup.mu.Lock()
	sup.closed = true
	for _, session := range sup.sessions.Keys() {
		if ms, ok := sup.sessions.Peek(session); ok {
			ms.actor.Stop()
			ms.cancel()
		}
	}
	sup.sessions.Purge()
	sup.mu.Unlock()

	_ = sup.dispatcher.Close()
}

// getOrHydrate returns the active managedSession for session, hydrating
// one from the event log (and spawning its actor) on a cache miss.
func (sup *Supervisor) getOrHydrate(ctx context.Context, session domain.SessionID) (*managedSession, error) {
	sup.mu.Lock()
	defer sup.mu.Unlock()

	if sup.closed {
		return nil, ErrShuttingDown
	}

	if ms, ok := sup.sessions.Get(session); ok {
		ms.touch()
		return ms, nil
	}

	exists, err := sup.store.SessionExists(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("supervisor: session exists: %w", err)
	}
	if !exists {
		return nil, ErrSessionNotFound
	}

	ms, err := sup.spawn(ctx, session)
	if err != nil {
		return nil, err
	}
	sup.sessions.Add(session, ms)
	return ms, nil
}

// spawn builds a fresh actor for session (which hydrates itself from
// the event log via actor.New) and starts its mailbox loop. Used for
// resuming a session already in the store, whose model and approvals
// replay alone reconstructs.
func (sup *Supervisor) spawn(parent context.Context, session domain.SessionID) (*managedSession, error) {
	return sup.spawnNew(parent, session, SessionConfig{})
}

// spawnNew is spawn plus cfg's initial model and pre-approvals, applied
// only if session turns out to be brand new (actor.New ignores them
// otherwise). CreateSession is the only caller that ever has a non-empty
// SessionConfig to offer, since it only makes sense at creation time.
func (sup *Supervisor) spawnNew(parent context.Context, session domain.SessionID, cfg SessionConfig) (*managedSession, error) {
	runCtx, cancel := context.WithCancel(context.Background())

	seed := actor.InitialState{
		Model:                   cfg.Model,
		PreApprovedTools:        cfg.PreApprovedTools,
		PreApprovedBashPatterns: cfg.PreApprovedBashPatterns,
	}
	a, err := actor.New(parent, session, sup.store, sup.interp, seed)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("supervisor: spawn actor: %w", err)
	}
	go a.Run(runCtx)

	return &managedSession{actor: a, cancel: cancel, lastActivity: time.Now()}, nil
}

// -- Convenience submission helpers, mirroring the original's
// RuntimeHandle::submit_user_input / submit_tool_approval / etc: thin
// Action constructors plus DispatchAction, so callers above this package
// don't need to import internal/domain/action directly for the common
// cases.

// SubmitUserInput validates text, allocates fresh op/message ids, and
// dispatches a UserInput action.
func (sup *Supervisor) SubmitUserInput(ctx context.Context, session domain.SessionID, text string, timestamp int64) (domain.OpID, error) {
	ne, err := domain.NewNonEmptyString(text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	op := domain.NewOpID()
	msg := domain.NewMessageID()
	act := action.NewUserInput(session, ne, op, msg, timestamp)
	if err := sup.DispatchAction(ctx, session, act); err != nil {
		return "", err
	}
	return op, nil
}

// SubmitEditedMessage forks the conversation at messageID with new
// content, returning the op id of the resulting turn.
func (sup *Supervisor) SubmitEditedMessage(ctx context.Context, session domain.SessionID, messageID domain.MessageID, newContent string, timestamp int64) (domain.OpID, error) {
	op := domain.NewOpID()
	newMsg := domain.NewMessageID()
	act := action.UserEditedMessage{
		MessageID:    messageID,
		NewContent:   newContent,
		OpID:         op,
		NewMessageID: newMsg,
		Timestamp:    timestamp,
	}
	act.Session = session
	if err := sup.DispatchAction(ctx, session, act); err != nil {
		return "", err
	}
	return op, nil
}

// SubmitToolApproval dispatches the user's decision on request.
func (sup *Supervisor) SubmitToolApproval(ctx context.Context, session domain.SessionID, request domain.RequestID, approved bool, remember action.ApprovalMemory) error {
	decision := action.Denied
	if approved {
		decision = action.Approved
	}
	act := action.ToolApprovalDecided{RequestID: request, Decision: decision, Remember: remember}
	act.Session = session
	return sup.DispatchAction(ctx, session, act)
}

// CancelOperation cancels opID (or the session's current operation if
// opID is nil).
func (sup *Supervisor) CancelOperation(ctx context.Context, session domain.SessionID, opID *domain.OpID) error {
	act := action.Cancel{OpID: opID}
	act.Session = session
	return sup.DispatchAction(ctx, session, act)
}

// CompactSession dispatches a RequestCompaction for session's active
// thread, returning the new operation's id.
func (sup *Supervisor) CompactSession(ctx context.Context, session domain.SessionID, model string) (domain.OpID, error) {
	op := domain.NewOpID()
	act := action.RequestCompaction{OpID: op, Model: model}
	act.Session = session
	if err := sup.DispatchAction(ctx, session, act); err != nil {
		return "", err
	}
	return op, nil
}

// ExecuteBashCommand dispatches a direct (non-agentic) shell command as
// its own operation, still subject to the approval pipeline.
func (sup *Supervisor) ExecuteBashCommand(ctx context.Context, session domain.SessionID, command string) (domain.OpID, error) {
	op := domain.NewOpID()
	act := action.DirectBashCommand{OpID: op, Command: command}
	act.Session = session
	if err := sup.DispatchAction(ctx, session, act); err != nil {
		return "", err
	}
	return op, nil
}

// ActiveThread returns the messages reachable by walking
// parent_message_id from session's active tip, the slice callers pass to
// a model call. Exposed here since handlers outside this package have no
// other way to read a session's conversation without poking at AppState
// internals directly.
func (sup *Supervisor) ActiveThread(ctx context.Context, session domain.SessionID) ([]conversation.Message, error) {
	st, err := sup.GetState(ctx, session)
	if err != nil {
		return nil, err
	}
	return st.Graph.ThreadMessages(), nil
}
