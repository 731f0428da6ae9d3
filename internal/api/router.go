package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/autolink/internal/linkservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *linkservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/references", h.ListReferences)
	r.Get("/backlinks/*", h.Backlinks)
	r.Get("/failures", h.ListFailures)
	r.Get("/runs", h.ListRuns)
	r.Get("/runs/latest", h.LatestRun)

	r.Post("/sync", h.Sync)
	r.Post("/resolve", h.Resolve)
	r.Post("/apply", h.ApplyAll)
	r.Post("/apply/*", h.Apply)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
