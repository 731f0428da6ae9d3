package linker

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// CompiledPattern is a single alternation with one capturing group per note.
// Group numbers are only meaningful for the run that built the pattern.
type CompiledPattern struct {
	re     *regexp2.Regexp
	expr   string
	groups []string // groups[i-1] is the note path for capturing group i
}

// Match is the leftmost hit of a pattern inside one piece of text. Start and
// End are byte offsets into that text.
type Match struct {
	Group  int
	Target string
	Text   string
	Start  int
	End    int
}

// Compile builds the combined pattern for sets, in the given order. Sets
// without identities still get a group so numbering follows corpus order.
func Compile(sets []IdentitySet, caseInsensitive bool, matchTimeout time.Duration) (*CompiledPattern, error) {
	cp := &CompiledPattern{groups: make([]string, 0, len(sets))}
	if len(sets) == 0 {
		return cp, nil
	}

	subs := make([]string, 0, len(sets))
	for _, set := range sets {
		subs = append(subs, notePattern(set))
		cp.groups = append(cp.groups, set.Path)
	}
	cp.expr = strings.Join(subs, "|")

	opts := regexp2.None
	if caseInsensitive {
		opts |= regexp2.IgnoreCase
	}
	re, err := regexp2.Compile(cp.expr, opts)
	if err != nil {
		return nil, &CompileError{Groups: len(cp.groups), Err: err}
	}
	if matchTimeout > 0 {
		re.MatchTimeout = matchTimeout
	}
	cp.re = re
	return cp, nil
}

// notePattern renders ((?:\bA\b)|(?:\bB\b)) for one note. A note with no
// usable identity gets a group that can never match.
func notePattern(set IdentitySet) string {
	if len(set.Identities) == 0 {
		return "((?!))"
	}
	var b strings.Builder
	b.WriteByte('(')
	for i, id := range set.Identities {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString("(?:")
		b.WriteString(leadingBoundary(id.Literal))
		b.WriteString(id.Escaped)
		b.WriteString(trailingBoundary(id.Literal))
		b.WriteByte(')')
	}
	b.WriteByte(')')
	return b.String()
}

// A literal that starts or ends with punctuation (C++, .NET) never sits on a
// \b, so those edges assert "no word character" instead.
func leadingBoundary(s string) string {
	r, _ := utf8.DecodeRuneInString(s)
	if isWordRune(r) {
		return `\b`
	}
	return `(?<!\w)`
}

func trailingBoundary(s string) string {
	r, _ := utf8.DecodeLastRuneInString(s)
	if isWordRune(r) {
		return `\b`
	}
	return `(?!\w)`
}

// isWordRune mirrors the \w class of regexp2.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) ||
		unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Pc, r)
}

// Groups returns the number of capturing groups.
func (p *CompiledPattern) Groups() int { return len(p.groups) }

// Target returns the note path behind a capturing group.
func (p *CompiledPattern) Target(group int) (string, bool) {
	if group < 1 || group > len(p.groups) {
		return "", false
	}
	return p.groups[group-1], true
}

// String returns the combined expression.
func (p *CompiledPattern) String() string { return p.expr }

// FindFirst returns the leftmost match in text. When several groups could
// match at that position the lowest group number wins.
func (p *CompiledPattern) FindFirst(text string) (Match, bool, error) {
	if p.re == nil || text == "" {
		return Match{}, false, nil
	}

	runes := []rune(text)
	m, err := p.re.FindRunesMatch(runes)
	if err != nil {
		return Match{}, false, err
	}
	if m == nil {
		return Match{}, false, nil
	}

	for i := 1; i <= len(p.groups); i++ {
		g := m.GroupByNumber(i)
		if g == nil || len(g.Captures) == 0 || g.Length == 0 {
			continue
		}
		start := byteOffset(runes, g.Index)
		end := start + byteOffset(runes[g.Index:], g.Length)
		return Match{
			Group:  i,
			Target: p.groups[i-1],
			Text:   text[start:end],
			Start:  start,
			End:    end,
		}, true, nil
	}
	return Match{}, false, nil
}

// byteOffset returns the UTF-8 length of the first n runes.
func byteOffset(runes []rune, n int) int {
	size := 0
	for _, r := range runes[:n] {
		size += utf8.RuneLen(r)
	}
	return size
}
