package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/2029ijones-sudo/os-lab/internal/api/middleware"
	"github.com/2029ijones-sudo/os-lab/internal/core"
	"github.com/2029ijones-sudo/os-lab/internal/store"
)

type CreateWorkspaceRequest struct {
	Name     string          `json:"name"`
	Files    core.FileTree   `json:"files,omitempty"`
	Manifest json.RawMessage `json:"manifest,omitempty"`
}

type UpdateWorkspaceRequest struct {
	Name     *string         `json:"name,omitempty"`
	Files    core.FileTree   `json:"files,omitempty"`
	Manifest json.RawMessage `json:"manifest,omitempty"`
}

// CreateWorkspace creates a workspace. An empty file tree gets the
// default desktop-app template.
func (a *API) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid JSON body"))
		return
	}
	if req.Name == "" {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "name is required"))
		return
	}
	files, manifest := req.Files, req.Manifest
	if len(files) == 0 {
		files = core.DefaultTemplate()
		if manifest == nil {
			manifest = core.DefaultManifest()
		}
	}

	ws, err := a.store.Create(r.Context(), store.CreateParams{
		OwnerID:  middleware.GetUser(r),
		Name:     req.Name,
		Files:    files,
		Manifest: manifest,
	})
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	a.log.Info("workspace created",
		zap.String("workspace_id", ws.ID),
		zap.String("slug", ws.Slug),
		zap.String("owner", ws.OwnerID))
	WriteJSON(w, http.StatusCreated, ws)
}

// GetWorkspace returns a workspace. Owners see everything; others only
// published workspaces.
func (a *API) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := a.store.Get(r.Context(), chi.URLParam(r, "wsid"))
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	if ws.OwnerID != middleware.GetUser(r) && !ws.IsPublished {
		WriteError(w, core.NewAppError(core.ErrNotFound, "workspace not found"))
		return
	}
	WriteJSON(w, http.StatusOK, ws)
}

// UpdateWorkspace patches name, files, or manifest. Owner only.
func (a *API) UpdateWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, ok := a.ownedWorkspace(w, r)
	if !ok {
		return
	}
	var req UpdateWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid JSON body"))
		return
	}
	updated, err := a.store.Update(r.Context(), ws.ID, store.UpdatePatch{
		Name:     req.Name,
		Files:    req.Files,
		Manifest: req.Manifest,
	})
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}

// DeleteWorkspace removes the workspace, its snapshot, and any live
// session. Owner only.
func (a *API) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, ok := a.ownedWorkspace(w, r)
	if !ok {
		return
	}
	a.registry.ReleaseByWorkspace(r.Context(), ws.ID)
	if err := a.store.Delete(r.Context(), ws.ID); err != nil {
		a.writeErr(w, r, err)
		return
	}
	a.log.Info("workspace deleted", zap.String("workspace_id", ws.ID))
	w.WriteHeader(http.StatusNoContent)
}

// ForkWorkspace copies the workspace's last published state (live tree
// when never published) into a new workspace owned by the caller.
func (a *API) ForkWorkspace(w http.ResponseWriter, r *http.Request) {
	src, err := a.store.Get(r.Context(), chi.URLParam(r, "wsid"))
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	user := middleware.GetUser(r)
	if src.OwnerID != user && !src.IsPublished {
		WriteError(w, core.NewAppError(core.ErrNotFound, "workspace not found"))
		return
	}
	fork, err := a.store.Fork(r.Context(), src.ID, user)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	a.log.Info("workspace forked",
		zap.String("source_id", src.ID),
		zap.String("fork_id", fork.ID),
		zap.String("owner", user))
	WriteJSON(w, http.StatusCreated, fork)
}

// StarWorkspace increments the star counter of a published workspace.
func (a *API) StarWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := a.store.Get(r.Context(), chi.URLParam(r, "wsid"))
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	if !ws.IsPublished {
		WriteError(w, core.NewAppError(core.ErrConflict, "workspace is not published"))
		return
	}
	starred, err := a.store.AddStar(r.Context(), ws.ID)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, starred)
}

// UnpublishWorkspace disables the preview. Owner only; the snapshot is
// retained for forks.
func (a *API) UnpublishWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, ok := a.ownedWorkspace(w, r)
	if !ok {
		return
	}
	if err := a.pub.Unpublish(r.Context(), ws.ID); err != nil {
		a.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPublished returns published workspaces sorted by ?sort=
// (stars, forks, or created) with an optional ?limit=.
func (a *API) ListPublished(w http.ResponseWriter, r *http.Request) {
	sortBy := r.URL.Query().Get("sort")
	switch sortBy {
	case "", store.SortByCreated:
		sortBy = store.SortByCreated
	case store.SortByStars, store.SortByForks:
	default:
		WriteError(w, core.NewAppError(core.ErrBadRequest, "unknown sort: "+sortBy))
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"), 20, 100)
	list, err := a.store.ListPublished(r.Context(), sortBy, limit)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"workspaces": list})
}

// ownedWorkspace loads the routed workspace and enforces ownership,
// writing the error response itself on failure.
func (a *API) ownedWorkspace(w http.ResponseWriter, r *http.Request) (*core.Workspace, bool) {
	ws, err := a.store.Get(r.Context(), chi.URLParam(r, "wsid"))
	if err != nil {
		a.writeErr(w, r, err)
		return nil, false
	}
	if ws.OwnerID != middleware.GetUser(r) {
		WriteError(w, core.NewAppError(core.ErrPermissionDenied, "not the workspace owner"))
		return nil, false
	}
	return ws, true
}

func parseLimit(s string, def, max int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
