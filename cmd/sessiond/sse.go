package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opencode-ai/opencode/internal/domain/event"
	"github.com/opencode-ai/opencode/internal/logging"
)

// sseHeartbeatInterval matches the teacher's internal/server/sse.go
// heartbeat cadence, keeping idle HTTP connections (and the proxies
// between client and server) from timing out a long-lived stream.
const sseHeartbeatInterval = 30 * time.Second

// sdkEvent is a thin SSE envelope around a durable event.SessionEvent,
// grounded on the teacher's SDKEvent: {"type": "...", "properties": {...}}.
type sdkEvent struct {
	Type       string `json:"type"`
	Properties any    `json:"properties"`
}

// sseWriter wraps http.ResponseWriter for SSE, grounded on
// internal/server/sse.go's sseWriter.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprint(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// sessionEvents streams one session's durable event log as SSE: first
// every event already on record after sequence 0 (LoadEventsAfter is
// exclusive, so the sequence-0 SessionCreated event is not replayed),
// then everything the supervisor's fan-out delivers from here on.
func (srv *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFromRequest(r)
	ctx := r.Context()

	sw, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	backlog, err := srv.sup.LoadEventsAfter(ctx, sessionID, 0)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	for _, env := range backlog {
		_ = sw.writeEvent(env.Event.Kind(), sdkEvent{Type: env.Event.Kind(), Properties: env.Event})
	}

	sub, err := srv.sup.SubscribeEvents(ctx, sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	defer sub.Close()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			sw.writeHeartbeat()
		case env, ok := <-sub.C:
			if !ok {
				return
			}
			if err := sw.writeEvent(env.Event.Kind(), sdkEvent{Type: env.Event.Kind(), Properties: env.Event}); err != nil {
				logging.Error().Err(err).Str("sessionID", string(sessionID)).Msg("sse write failed")
				return
			}
		}
	}
}

// globalEvents streams every workspace-wide notification published on
// internal/event's bus (file edits, permission prompts, todo updates,
// VCS branch changes) rather than one session's durable log — the
// side-channel bus internal/event/doc.go describes, not the dispatcher.
func (srv *Server) globalEvents(w http.ResponseWriter, r *http.Request) {
	sw, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan event.Event, 64)
	unsubscribe := event.SubscribeAll(func(e event.Event) {
		select {
		case ch <- e:
		default:
			logging.Warn().Str("type", string(e.Type)).Msg("global event dropped, subscriber channel full")
		}
	})
	defer unsubscribe()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			sw.writeHeartbeat()
		case e := <-ch:
			if err := sw.writeEvent(string(e.Type), sdkEvent{Type: string(e.Type), Properties: e.Data}); err != nil {
				return
			}
		}
	}
}
