package linker

import (
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/starford/autolink/internal/models"
)

// Identity is one title or alias of a note, kept both as written and escaped
// for literal matching.
type Identity struct {
	Literal string
	Escaped string
}

// IdentitySet is the ordered list of identities of one note. The title comes
// first, so it wins over the note's own aliases at the same position.
type IdentitySet struct {
	Path       string
	Identities []Identity
}

// NewIdentitySet derives the identity set of a parsed note. Blank strings are
// dropped and repeated strings keep their first position only.
func NewIdentitySet(n *models.Note) IdentitySet {
	set := IdentitySet{Path: n.Path}
	seen := make(map[string]struct{}, len(n.Aliases)+1)
	for _, s := range n.Identities() {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		set.Identities = append(set.Identities, Identity{
			Literal: s,
			Escaped: regexp2.Escape(s),
		})
	}
	return set
}
