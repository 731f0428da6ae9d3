package linker

import (
	"github.com/samber/lo"

	"github.com/starford/autolink/internal/models"
)

// Aggregate applies the self-link filter and collects failed paths in corpus
// order. Identical references are kept: every occurrence is a separate
// place a link can be inserted.
func Aggregate(refs []models.Reference, outcomes []models.ParseOutcome, linkToSelf bool) *models.Result {
	if !linkToSelf {
		refs = lo.Filter(refs, func(r models.Reference, _ int) bool {
			return r.Source != r.Target
		})
	}
	if refs == nil {
		refs = []models.Reference{}
	}

	res := &models.Result{
		References:  refs,
		FailedPaths: make([]string, 0),
	}
	for _, o := range outcomes {
		switch {
		case o.Failure != nil:
			res.FailedPaths = append(res.FailedPaths, o.Failure.Path)
			res.Failures = append(res.Failures, o.Failure)
		case o.Note != nil:
			res.Notes = append(res.Notes, o.Note)
		}
	}
	return res
}
