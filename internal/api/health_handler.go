package api

import (
	"net/http"

	"github.com/2029ijones-sudo/os-lab/internal/core"
)

// HealthHandler reports process liveness.
func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler reports readiness, including store reachability.
func (a *API) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		WriteError(w, core.NewAppError(core.ErrPersistence, "store unreachable"))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
