package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/2029ijones-sudo/os-lab/internal/api/middleware"
	"github.com/2029ijones-sudo/os-lab/internal/core"
	"github.com/2029ijones-sudo/os-lab/internal/identity"
	"github.com/2029ijones-sudo/os-lab/internal/publish"
	"github.com/2029ijones-sudo/os-lab/internal/registry"
	"github.com/2029ijones-sudo/os-lab/internal/store"
)

type API struct {
	store    store.Store
	registry *registry.Registry
	pub      *publish.Publisher
	verifier identity.Verifier
	log      *zap.Logger
}

func NewAPI(st store.Store, reg *registry.Registry, pub *publish.Publisher, verifier identity.Verifier, log *zap.Logger) *API {
	return &API{
		store:    st,
		registry: reg,
		pub:      pub,
		verifier: verifier,
		log:      log,
	}
}

func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)
	r.Use(middleware.Recoverer(a.log))
	r.Use(middleware.Logger)

	// Health endpoints
	r.Get("/healthz", a.HealthHandler)
	r.Get("/readyz", a.ReadyHandler)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Public: published previews need no credentials.
		r.Get("/preview/{slug}", a.ServePreview)
		r.Get("/preview/{slug}/*", a.ServePreview)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(a.verifier))

			// Workspaces
			r.Post("/workspaces", a.CreateWorkspace)
			r.Get("/workspaces", a.ListPublished)
			r.Get("/workspaces/{wsid}", a.GetWorkspace)
			r.Patch("/workspaces/{wsid}", a.UpdateWorkspace)
			r.Delete("/workspaces/{wsid}", a.DeleteWorkspace)
			r.Post("/workspaces/{wsid}/fork", a.ForkWorkspace)
			r.Post("/workspaces/{wsid}/star", a.StarWorkspace)
			r.Post("/workspaces/{wsid}/unpublish", a.UnpublishWorkspace)

			// Sessions
			r.Post("/workspaces/{wsid}/sessions", a.AcquireSession)
			r.Get("/sessions/{sid}", a.GetSession)
			r.Delete("/sessions/{sid}", a.ReleaseSession)
			r.Get("/sessions/{sid}/files", a.ListFiles)
			r.Put("/sessions/{sid}/files/*", a.PutFile)
			r.Get("/sessions/{sid}/files/*", a.GetFile)
			r.Post("/sessions/{sid}/run", a.RunCommand)
			r.Post("/sessions/{sid}/save", a.SaveAndPublish)
			r.Get("/sessions/{sid}/shell", a.ShellSocket)
			r.Get("/sessions/{sid}/events", a.SessionEvents)
		})
	})

	return r
}

// writeErr maps any error to the wire format, treating untyped errors as
// internal.
func (a *API) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := core.AsAppError(err)
	if !ok {
		appErr = core.NewAppError(core.ErrInternal, "internal server error")
	}
	if appErr.Code.HTTPStatus() >= 500 {
		a.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	WriteError(w, appErr)
}
