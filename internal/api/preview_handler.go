package api

import (
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ServePreview serves a published snapshot's files at the workspace
// slug. Requests inside the preview window get the snapshotted content;
// at or after expiry the preview is gone.
func (a *API) ServePreview(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	_, snap, err := a.pub.Preview(r.Context(), slug)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}

	asset := strings.TrimPrefix(path.Clean("/"+chi.URLParam(r, "*")), "/")
	if asset == "" {
		asset = "index.html"
	}
	content, ok := snap.Files[asset]
	if !ok {
		http.NotFound(w, r)
		return
	}

	ctype := mime.TypeByExtension(path.Ext(asset))
	if ctype == "" {
		ctype = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", ctype)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}
