package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/2029ijones-sudo/os-lab/internal/api/middleware"
	"github.com/2029ijones-sudo/os-lab/internal/core"
	"github.com/2029ijones-sudo/os-lab/internal/session"
)

// AcquireSession returns the workspace's live session, provisioning one
// if needed. Owner only. Concurrent acquisitions converge on the same
// session.
func (a *API) AcquireSession(w http.ResponseWriter, r *http.Request) {
	ws, ok := a.ownedWorkspace(w, r)
	if !ok {
		return
	}
	s, err := a.registry.Acquire(r.Context(), ws.ID, middleware.GetUser(r))
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.Info())
}

// GetSession returns the session's current state.
func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.ownedSession(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, s.Info())
}

// ReleaseSession tears the session down. Releasing twice is fine.
func (a *API) ReleaseSession(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	s, err := a.registry.Lookup(sid)
	if err != nil {
		// Already gone; release is idempotent.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if s.Requester != middleware.GetUser(r) {
		WriteError(w, core.NewAppError(core.ErrPermissionDenied, "not the session owner"))
		return
	}
	a.registry.Release(r.Context(), sid)
	w.WriteHeader(http.StatusNoContent)
}

// ListFiles returns the session's file tree, queued edits included.
func (a *API) ListFiles(w http.ResponseWriter, r *http.Request) {
	s, ok := a.ownedSession(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"files": s.Tree()})
}

type PutFileRequest struct {
	Content string `json:"content"`
}

// PutFile writes one file into the session. Writes before the session
// is Ready are queued and replayed in order.
func (a *API) PutFile(w http.ResponseWriter, r *http.Request) {
	s, ok := a.ownedSession(w, r)
	if !ok {
		return
	}
	var req PutFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid JSON body"))
		return
	}
	path := chi.URLParam(r, "*")
	if err := s.WriteFile(r.Context(), path, req.Content); err != nil {
		a.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetFile reads one file from the session.
func (a *API) GetFile(w http.ResponseWriter, r *http.Request) {
	s, ok := a.ownedSession(w, r)
	if !ok {
		return
	}
	path := chi.URLParam(r, "*")
	content, err := s.ReadFile(r.Context(), path)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"path": path, "content": content})
}

type RunCommandRequest struct {
	Argv []string `json:"argv"`
}

// RunCommand dispatches a command in the session's environment. Output
// streams over the shell socket.
func (a *API) RunCommand(w http.ResponseWriter, r *http.Request) {
	s, ok := a.ownedSession(w, r)
	if !ok {
		return
	}
	var req RunCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid JSON body"))
		return
	}
	if err := s.Exec(r.Context(), req.Argv); err != nil {
		a.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// SaveAndPublish persists the session's current tree as the workspace's
// published snapshot and opens the preview window.
func (a *API) SaveAndPublish(w http.ResponseWriter, r *http.Request) {
	s, ok := a.ownedSession(w, r)
	if !ok {
		return
	}
	ws, err := a.store.Get(r.Context(), s.WorkspaceID)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	res, err := a.pub.Publish(r.Context(), ws.ID, s.Tree(), ws.Manifest)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	a.log.Info("session saved and published",
		zap.String("session_id", s.ID),
		zap.String("workspace_id", ws.ID))
	WriteJSON(w, http.StatusOK, res)
}

func (a *API) ownedSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := a.registry.Lookup(chi.URLParam(r, "sid"))
	if err != nil {
		a.writeErr(w, r, err)
		return nil, false
	}
	if s.Requester != middleware.GetUser(r) {
		WriteError(w, core.NewAppError(core.ErrPermissionDenied, "not the session owner"))
		return nil, false
	}
	return s, true
}
