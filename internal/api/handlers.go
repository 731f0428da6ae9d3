package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/autolink/internal/linker"
	"github.com/starford/autolink/internal/linkservice"
	"github.com/starford/autolink/internal/models"
)

// maxResolveBody bounds the ad-hoc corpus accepted by POST /resolve.
const maxResolveBody = 32 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *linkservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *linkservice.Service) *Handler {
	return &Handler{svc: svc}
}

// notePath extracts the note path from the wildcard part of the URL.
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func boolQuery(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

// ListReferences handles GET /api/references.
//
//	@Summary		List references of the latest run
//	@Tags			references
//	@Produce		json
//	@Param			source	query		string	false	"Only references found in this note"
//	@Param			target	query		string	false	"Only references pointing at this note"
//	@Success		200		{object}	ReferencesResponse
//	@Security		BearerAuth
//	@Router			/references [get]
func (h *Handler) ListReferences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	refs, err := h.svc.References(r.Context(), q.Get("source"), q.Get("target"))
	if err != nil {
		writeError(w, "list references", err)
		return
	}
	writeJSON(w, http.StatusOK, ReferencesResponse{References: refs, Total: len(refs)})
}

// Backlinks handles GET /api/backlinks/*.
//
//	@Summary		List references pointing at a note
//	@Tags			references
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	BacklinksResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backlinks/{path} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	res, err := h.svc.Backlinks(r.Context(), path)
	if err != nil {
		writeError(w, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListFailures handles GET /api/failures.
//
//	@Summary		List notes the latest run could not parse
//	@Tags			runs
//	@Produce		json
//	@Success		200	{object}	FailuresResponse
//	@Security		BearerAuth
//	@Router			/failures [get]
func (h *Handler) ListFailures(w http.ResponseWriter, r *http.Request) {
	fs, err := h.svc.Failures(r.Context())
	if err != nil {
		writeError(w, "list failures", err)
		return
	}
	writeJSON(w, http.StatusOK, FailuresResponse{Failures: fs})
}

// LatestRun handles GET /api/runs/latest.
//
//	@Summary		Get the latest resolution run
//	@Tags			runs
//	@Produce		json
//	@Success		200	{object}	index.Run
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs/latest [get]
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.LatestRun(r.Context())
	if err != nil {
		writeError(w, "latest run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListRuns handles GET /api/runs.
//
//	@Summary		List recent resolution runs, newest first
//	@Tags			runs
//	@Produce		json
//	@Param			limit	query	int	false	"Maximum number of runs"
//	@Success		200		{array}	index.Run
//	@Security		BearerAuth
//	@Router			/runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.svc.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, "list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// Sync handles POST /api/sync.
//
//	@Summary		Resolve the vault and store a new run
//	@Tags			runs
//	@Produce		json
//	@Param			force	query		bool	false	"Resolve even if nothing changed"
//	@Success		200		{object}	SyncResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	run, changed, err := h.svc.Sync(r.Context(), boolQuery(r, "force"))
	if err != nil {
		writeError(w, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{Run: run, Changed: changed})
}

// Resolve handles POST /api/resolve.
//
//	@Summary		Resolve references in an ad-hoc corpus
//	@Tags			references
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ResolveRequest	true	"Corpus and flags"
//	@Success		200		{object}	ResolveResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resolve [post]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxResolveBody)
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request body too large"))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	opts := h.svc.Options()
	if req.CaseInsensitive != nil {
		opts.CaseInsensitive = *req.CaseInsensitive
	}
	if req.LinkToSelf != nil {
		opts.LinkToSelf = *req.LinkToSelf
	}

	docs := make([]models.Document, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = models.Document{Path: d.Path, Content: []byte(d.Content)}
	}
	res, err := h.svc.ResolveDocuments(r.Context(), docs, opts)
	if err != nil {
		if errors.Is(err, linker.ErrPatternCompilation) {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
			return
		}
		writeError(w, "resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Apply handles POST /api/apply/*.
//
//	@Summary		Insert wiki links for the references found in a note
//	@Tags			references
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string			true	"Note path"
//	@Param			dry_run	query		bool			false	"Return the new content without writing it"
//	@Param			body	body		ApplyRequest	false	"References to link, by start offset; all when omitted"
//	@Success		200		{object}	ApplyResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/apply/{path} [post]
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}

	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	dryRun := boolQuery(r, "dry_run")
	var (
		res *linkservice.ApplyResult
		err error
	)
	if req.Starts != nil {
		res, err = h.svc.ApplySelected(r.Context(), path, dryRun, req.Starts)
	} else {
		res, err = h.svc.Apply(r.Context(), path, dryRun)
	}
	if err != nil {
		writeError(w, "apply", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ApplyAll handles POST /api/apply.
//
//	@Summary		Insert wiki links in every note with references
//	@Tags			references
//	@Produce		json
//	@Param			dry_run	query		bool	false	"Return the new content without writing it"
//	@Success		200		{array}		ApplyResponse
//	@Failure		409		{object}	errResponse
//	@Failure		500		{object}	ApplyFailedResponse
//	@Security		BearerAuth
//	@Router			/apply [post]
func (h *Handler) ApplyAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ApplyAll(r.Context(), boolQuery(r, "dry_run"))
	if err != nil {
		if len(res) == 0 {
			writeError(w, "apply all", err)
			return
		}
		slog.Error("apply all failed", slog.String("error", err.Error()))
		applied := make([]ApplyResponse, len(res))
		for i, a := range res {
			applied[i] = *a
		}
		writeJSON(w, http.StatusInternalServerError, ApplyFailedResponse{Error: err.Error(), Applied: applied})
		return
	}
	writeJSON(w, http.StatusOK, res)
}
