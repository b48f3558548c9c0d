package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/2029ijones-sudo/os-lab/internal/core"
)

// SessionEvents streams session state changes as server-sent events.
// The current state is delivered first, then every transition until the
// client disconnects or the session closes.
func (a *API) SessionEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := a.ownedSession(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, core.NewAppError(core.ErrInternal, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	changes, unsubscribe := s.Subscribe()
	defer unsubscribe()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case change, open := <-changes:
			if !open {
				return
			}
			payload, err := json.Marshal(change)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: state\ndata: %s\n\n", payload)
			flusher.Flush()
			if change.State.IsTerminal() {
				return
			}
		}
	}
}
