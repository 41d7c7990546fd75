// Package actor implements the per-session actor: a single goroutine
// owning one session's AppState, serializing every Action through Reduce
// and handing the resulting effects to an interpreter.Interpreter.
// Actions only ever reach a session's state through this mailbox, so two
// goroutines dispatching concurrently can never race on the same
// AppState.
//
// Grounded on
// original_source/crates/steer-core/src/app/domain/runtime/session_actor.rs,
// adapted to Go: the original's event/delta broadcast channels are owned
// by internal/runtime/dispatcher at the supervisor level rather than per
// actor, so this mailbox only needs to carry commands and feedback
// actions, not subscriptions.
package actor

import (
	"context"
	"fmt"

	"github.com/opencode-ai/opencode/internal/domain/action"
	"github.com/opencode-ai/opencode/internal/domain/effect"
	"github.com/opencode-ai/opencode/internal/domain/event"
	"github.com/opencode-ai/opencode/internal/domain/reduce"
	"github.com/opencode-ai/opencode/internal/domain/state"
	"github.com/opencode-ai/opencode/internal/eventstore"
	"github.com/opencode-ai/opencode/internal/runtime/interpreter"
	"github.com/opencode-ai/opencode/pkg/domain"
)

// mailboxCapacity bounds the command channel so a stalled actor applies
// backpressure to callers instead of growing without limit.
const mailboxCapacity = 32

// internalCapacity bounds the feedback channel effects are fed back
// through; it must comfortably exceed the number of tool calls a single
// model turn can request.
const internalCapacity = 256

// Interpreter is the subset of interpreter.Interpreter an Actor needs.
type Interpreter interface {
	Run(ctx context.Context, eff effect.Effect, fb interpreter.Feedback)
}

type dispatchCmd struct {
	action action.Action
	reply  chan error
}

type getStateCmd struct {
	reply chan *state.AppState
}

// Actor owns one session's AppState and the goroutine that mutates it.
type Actor struct {
	session domain.SessionID
	state   *state.AppState
	interp  Interpreter

	dispatchCh chan dispatchCmd
	getStateCh chan getStateCmd
	internalCh chan action.Action
	stopCh     chan struct{}
	stoppedCh  chan struct{}
}

// InitialState seeds a brand-new session before its first action ever
// runs: the model it starts on and any tools/bash patterns pre-approved
// from the start. All of it is ignored once the event log turns out to
// be non-empty, since a resumed session's state is whatever replay
// reconstructs instead.
type InitialState struct {
	Model                   string
	PreApprovedTools        []string
	PreApprovedBashPatterns []string
}

// New builds an Actor for session, hydrated from every event store has
// recorded for it so far, or seeded from initial if session turns out to
// be brand new. It does not start the mailbox goroutine; call Run for
// that.
func New(ctx context.Context, session domain.SessionID, store eventstore.Store, interp Interpreter, initial InitialState) (*Actor, error) {
	envelopes, err := store.LoadEvents(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("actor: load events for hydration: %w", err)
	}

	st := state.New(session)
	if len(envelopes) > 0 {
		events := make([]event.SessionEvent, len(envelopes))
		for i, env := range envelopes {
			events[i] = env.Event
		}
		reduce.Reduce(st, action.Hydrate{Events: events, StartingSequence: envelopes[len(envelopes)-1].Sequence})
	} else {
		if initial.Model != "" {
			st.Model = initial.Model
		}
		for _, t := range initial.PreApprovedTools {
			st.ApproveTool(t)
		}
		for _, p := range initial.PreApprovedBashPatterns {
			st.ApproveBashPattern(p)
		}
	}

	return &Actor{
		session:    session,
		state:      st,
		interp:     interp,
		dispatchCh: make(chan dispatchCmd, mailboxCapacity),
		getStateCh: make(chan getStateCmd),
		internalCh: make(chan action.Action, internalCapacity),
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}, nil
}

// Run drives the mailbox loop until ctx is cancelled or Stop is called.
// Callers should run this in its own goroutine.
func (a *Actor) Run(ctx context.Context) {
	defer close(a.stoppedCh)

	for {
		select {
		case cmd := <-a.dispatchCh:
			cmd.reply <- a.apply(ctx, cmd.action)

		case cmd := <-a.getStateCh:
			cmd.reply <- a.state

		case act := <-a.internalCh:
			_ = a.apply(ctx, act)

		case <-a.stopCh:
			return

		case <-ctx.Done():
			return
		}
	}
}

// Dispatch enqueues act and blocks until it has been folded into state
// and every resulting effect started.
func (a *Actor) Dispatch(ctx context.Context, act action.Action) error {
	reply := make(chan error, 1)
	select {
	case a.dispatchCh <- dispatchCmd{action: act, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.stoppedCh:
		return fmt.Errorf("actor: session %s is stopped", a.session)
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns a snapshot of the actor's current AppState pointer. The
// caller must not mutate it; the actor owns it exclusively.
func (a *Actor) State(ctx context.Context) (*state.AppState, error) {
	reply := make(chan *state.AppState, 1)
	select {
	case a.getStateCh <- getStateCmd{reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.stoppedCh:
		return nil, fmt.Errorf("actor: session %s is stopped", a.session)
	}

	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop terminates the mailbox loop. It is safe to call more than once.
func (a *Actor) Stop() {
	select {
	case <-a.stoppedCh:
	default:
		close(a.stopCh)
	}
}

// Stopped returns a channel closed once the mailbox loop has exited.
func (a *Actor) Stopped() <-chan struct{} {
	return a.stoppedCh
}

func (a *Actor) apply(ctx context.Context, act action.Action) error {
	effects := reduce.Reduce(a.state, act)
	for _, eff := range effects {
		a.interp.Run(ctx, eff, a.feedback)
	}
	return nil
}

// feedback is passed to the interpreter as the Feedback callback; it
// re-enters the mailbox loop from whatever goroutine the interpreter
// used to produce act; a non-blocking send is not safe here since the
// actor must never drop a result, so this blocks (briefly backpressuring
// the interpreter) if internalCh is momentarily full.
func (a *Actor) feedback(act action.Action) {
	select {
	case a.internalCh <- act:
	case <-a.stoppedCh:
	}
}
