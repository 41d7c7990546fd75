package main

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/opencode/internal/domain/action"
	"github.com/opencode-ai/opencode/internal/runtime/supervisor"
	"github.com/opencode-ai/opencode/pkg/domain"
	"github.com/opencode-ai/opencode/pkg/domain/conversation"
)

// sessionIDFromRequest reads the {sessionID} chi URL parameter. IDs are
// opaque ULID strings (pkg/domain.rawID); no parsing is needed beyond
// the conversion itself.
func sessionIDFromRequest(r *http.Request) domain.SessionID {
	return domain.SessionID(chi.URLParam(r, "sessionID"))
}

// createSessionRequest is the body of POST /session, mirroring the
// teacher's handlers_session.go createSession request shape trimmed to
// the fields supervisor.SessionConfig accepts.
type createSessionRequest struct {
	Model    string            `json:"model"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (srv *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
	}

	session, err := srv.sup.CreateSession(r.Context(), supervisor.SessionConfig{
		Model:    req.Model,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": string(session)})
}

func (srv *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := srv.sup.ListAllSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	writeJSON(w, http.StatusOK, out)
}

// sessionStateResponse is a trimmed view of state.AppState safe to hand
// to a client: the fields a UI would actually render.
type sessionStateResponse struct {
	ID              string   `json:"id"`
	Model           string   `json:"model"`
	Active          bool     `json:"active"`
	OperationActive bool     `json:"operationActive"`
	WorkspaceFiles  []string `json:"workspaceFiles,omitempty"`
	Branch          string   `json:"branch,omitempty"`
}

func (srv *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFromRequest(r)
	st, err := srv.sup.GetState(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionStateResponse{
		ID:              string(sessionID),
		Model:           st.Model,
		Active:          srv.sup.IsSessionActive(sessionID),
		OperationActive: st.ActiveOperation != nil,
		WorkspaceFiles:  st.WorkspaceFiles,
		Branch:          st.Branch,
	})
}

func (srv *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := srv.sup.DeleteSession(r.Context(), sessionIDFromRequest(r)); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

func (srv *Server) suspendSession(w http.ResponseWriter, r *http.Request) {
	if err := srv.sup.SuspendSession(r.Context(), sessionIDFromRequest(r)); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

func (srv *Server) resumeSession(w http.ResponseWriter, r *http.Request) {
	if err := srv.sup.ResumeSession(r.Context(), sessionIDFromRequest(r)); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

// messageResponse flattens conversation.Message into a JSON-friendly
// shape; Message.Data's closed interface has no JSON tags of its own
// (pkg/domain/conversation deliberately carries no JSON concerns), so
// the HTTP layer is responsible for the discriminated-union framing,
// the way pkg/types/parts.go's UnmarshalPart does for wire parts.
type messageResponse struct {
	ID        string `json:"id"`
	ParentID  string `json:"parentID,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Role      string `json:"role"`
	Text      string `json:"text,omitempty"`
}

func toMessageResponse(msg conversation.Message) messageResponse {
	out := messageResponse{ID: string(msg.ID), Timestamp: msg.Timestamp}
	if msg.ParentID != nil {
		out.ParentID = string(*msg.ParentID)
	}
	switch d := msg.Data.(type) {
	case conversation.UserData:
		out.Role = "user"
		for _, c := range d.Content {
			if tc, ok := c.(conversation.TextContent); ok {
				out.Text += tc.Text
			}
		}
	case conversation.AssistantData:
		out.Role = "assistant"
		for _, c := range d.Content {
			if tc, ok := c.(conversation.TextContent); ok {
				out.Text += tc.Text
			}
		}
	case conversation.ToolData:
		out.Role = "tool"
		if !d.Result.IsError() {
			if pt, ok := d.Result.Value.(conversation.PlainTextResult); ok {
				out.Text = pt.Text
			}
		}
	}
	return out
}

func (srv *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	thread, err := srv.sup.ActiveThread(r.Context(), sessionIDFromRequest(r))
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	out := make([]messageResponse, len(thread))
	for i, msg := range thread {
		out[i] = toMessageResponse(msg)
	}
	writeJSON(w, http.StatusOK, out)
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func (srv *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	opID, err := srv.sup.SubmitUserInput(r.Context(), sessionIDFromRequest(r), req.Text, time.Now().UnixMilli())
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"opID": string(opID)})
}

func (srv *Server) cancelOperation(w http.ResponseWriter, r *http.Request) {
	if err := srv.sup.CancelOperation(r.Context(), sessionIDFromRequest(r), nil); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

type compactRequest struct {
	Model string `json:"model"`
}

func (srv *Server) compactSession(w http.ResponseWriter, r *http.Request) {
	var req compactRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
	}
	opID, err := srv.sup.CompactSession(r.Context(), sessionIDFromRequest(r), req.Model)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"opID": string(opID)})
}

type shellRequest struct {
	Command string `json:"command"`
}

func (srv *Server) runShell(w http.ResponseWriter, r *http.Request) {
	var req shellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	opID, err := srv.sup.ExecuteBashCommand(r.Context(), sessionIDFromRequest(r), req.Command)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"opID": string(opID)})
}

// respondApprovalRequest is the body of POST
// /session/{sessionID}/approval/{requestID}.
type respondApprovalRequest struct {
	Approved bool   `json:"approved"`
	Remember string `json:"remember,omitempty"` // "" | "tool" | "bash_pattern"
	Value    string `json:"value,omitempty"`    // tool name or bash pattern, when Remember is set
}

func (srv *Server) respondApproval(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	var req respondApprovalRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
	}

	remember := action.ApprovalMemory{}
	switch req.Remember {
	case "tool":
		remember = action.ApprovalMemory{Kind: action.RememberTool, Value: req.Value}
	case "bash_pattern":
		remember = action.ApprovalMemory{Kind: action.RememberBashPattern, Value: req.Value}
	}

	requestID := domain.RequestID(chi.URLParam(r, "requestID"))
	if err := srv.sup.SubmitToolApproval(r.Context(), sessionIDFromRequest(r), requestID, req.Approved, remember); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeSuccess(w)
}
