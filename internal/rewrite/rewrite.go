// Package rewrite turns resolved references into wiki links inside note
// content.
package rewrite

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/starford/autolink/internal/models"
)

// Outcome reports what Apply did with the references it was given.
type Outcome struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}

// Link renders the wiki link for a reference: [[target|text]], with the
// .md extension dropped from the target.
func Link(r models.Reference) string {
	target := r.Target
	if ext := path.Ext(target); strings.EqualFold(ext, ".md") {
		target = strings.TrimSuffix(target, ext)
	}
	if target == r.MatchedText {
		return "[[" + target + "]]"
	}
	return "[[" + target + "|" + r.MatchedText + "]]"
}

// Apply replaces every reference span of content with its wiki link.
// References that overlap an earlier one, point outside content, or no
// longer hold their matched text are skipped. content is not modified.
func Apply(content []byte, refs []models.Reference) ([]byte, Outcome, error) {
	var out Outcome
	sorted := make([]models.Reference, len(refs))
	copy(sorted, refs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var b strings.Builder
	b.Grow(len(content) + 16*len(sorted))
	pos := 0
	for _, r := range sorted {
		if r.Start < pos || r.End > len(content) || r.Start >= r.End {
			out.Skipped++
			continue
		}
		if string(content[r.Start:r.End]) != r.MatchedText {
			out.Skipped++
			continue
		}
		b.Write(content[pos:r.Start])
		b.WriteString(Link(r))
		pos = r.End
		out.Applied++
	}
	b.Write(content[pos:])

	if out.Applied == 0 && len(refs) > 0 {
		return nil, out, fmt.Errorf("rewrite: none of %d references match the content", len(refs))
	}
	return []byte(b.String()), out, nil
}
