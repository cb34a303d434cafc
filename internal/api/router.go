package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/othala/internal/vaultservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *vaultservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Artifact registry.
	r.Get("/artifacts", h.ListArtifacts)
	r.Post("/artifacts", h.Register)
	r.Get("/artifacts/*", h.GetArtifact)
	r.Delete("/artifacts/*", h.Unregister)

	// Integrity.
	r.Get("/verify", h.Verify)
	r.Get("/validate", h.ValidateChain)
	r.Get("/drift", h.Drift)

	// Lineage.
	r.Get("/trace", h.Trace)
	r.Get("/report", h.Report)
	r.Get("/export", h.Export)
	r.Get("/graph", h.Graph)
	r.Get("/graph.dot", h.GraphDOT)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
