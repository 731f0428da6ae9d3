package api

import (
	"github.com/starford/autolink/internal/index"
	"github.com/starford/autolink/internal/linkservice"
	"github.com/starford/autolink/internal/models"
)

// ResolveDocument is one note of an ad-hoc corpus.
type ResolveDocument struct {
	Path    string `json:"path" example:"notes/euler.md" validate:"required"`
	Content string `json:"content" example:"See Identity for background." validate:"required"`
}

// ResolveRequest is the request body for POST /resolve. Unset flags fall
// back to the server's linker settings.
type ResolveRequest struct {
	Documents       []ResolveDocument `json:"documents" validate:"required"`
	CaseInsensitive *bool             `json:"case_insensitive,omitempty"`
	LinkToSelf      *bool             `json:"link_to_self,omitempty"`
}

// ResolveResponse mirrors the linker result.
type ResolveResponse = models.Result

// ReferencesResponse wraps a list of references.
type ReferencesResponse struct {
	References []models.Reference `json:"references" validate:"required"`
	Total      int                `json:"total" example:"42" validate:"required"`
}

// BacklinksResponse lists references pointing at one note.
type BacklinksResponse = linkservice.BacklinksResult

// FailuresResponse wraps the notes the latest run could not parse.
type FailuresResponse struct {
	Failures []index.Failure `json:"failures" validate:"required"`
}

// SyncResponse is returned by POST /sync.
type SyncResponse struct {
	Run     index.Run `json:"run"`
	Changed bool      `json:"changed" example:"true"`
}

// ApplyResponse reports links inserted into a note.
type ApplyResponse = linkservice.ApplyResult

// ApplyRequest is the optional body of POST /apply/*. When Starts is set,
// only the references starting at those byte offsets are linked.
type ApplyRequest struct {
	Starts []int `json:"starts,omitempty" example:"18,40"`
}

// ApplyFailedResponse is returned when POST /apply fails after some notes
// were already written. Applied lists those notes.
type ApplyFailedResponse struct {
	Error   string          `json:"error"`
	Applied []ApplyResponse `json:"applied"`
}
