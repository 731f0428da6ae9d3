// Package parser turns raw Markdown into the title, aliases and linkable
// text spans the linker works on.
package parser

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/starford/autolink/internal/models"
)

var (
	ErrInvalidUTF8        = errors.New("content is not valid UTF-8")
	ErrInvalidFrontmatter = errors.New("invalid front matter")
	ErrNoTitle            = errors.New("no title")
)

var errAliasType = errors.New("aliases must be a string or a list of strings")

// Markdown parses notes with goldmark. The zero value is not usable; call New.
// A Markdown is safe for concurrent use.
type Markdown struct {
	md goldmark.Markdown
}

// New returns a Markdown parser with GitHub-flavoured extensions enabled so
// that tables are scanned cell by cell and bare URLs are treated as links.
func New() *Markdown {
	return &Markdown{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Parse extracts the note identity and linkable spans from raw content.
func (m *Markdown) Parse(notePath string, content []byte) (*models.Note, error) {
	if !utf8.Valid(content) {
		return nil, ErrInvalidUTF8
	}

	raw := string(content)
	fmBlock, bodyOffset, hasFM := splitFrontmatter(raw)

	var fm map[string]any
	if hasFM {
		if err := yaml.Unmarshal([]byte(fmBlock), &fm); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrontmatter, err)
		}
	}

	body := content[bodyOffset:]
	doc := m.md.Parser().Parse(text.NewReader(body))

	title := deriveTitle(fm, doc, body, notePath)
	if title == "" {
		return nil, ErrNoTitle
	}

	aliases, err := extractAliases(fm)
	if err != nil {
		// Alias problems never fail the note.
		aliases = nil
	}

	return &models.Note{
		Path:    notePath,
		Title:   title,
		Aliases: aliases,
		Spans:   collectSpans(doc, raw, bodyOffset),
	}, nil
}

// splitFrontmatter locates a YAML block fenced by "---" lines at the very
// start of raw. It returns the YAML text and the byte offset where the body
// begins. Unterminated front matter is treated as body.
func splitFrontmatter(raw string) (string, int, bool) {
	const delim = "---"

	firstEnd := strings.IndexByte(raw, '\n')
	if firstEnd < 0 || strings.TrimRight(raw[:firstEnd], " \t\r") != delim {
		return "", 0, false
	}

	pos := firstEnd + 1
	for pos <= len(raw) {
		lineEnd := strings.IndexByte(raw[pos:], '\n')
		next := len(raw)
		line := raw[pos:]
		if lineEnd >= 0 {
			line = raw[pos : pos+lineEnd]
			next = pos + lineEnd + 1
		}
		if strings.TrimRight(line, " \t\r") == delim {
			return raw[firstEnd+1 : pos], next, true
		}
		if lineEnd < 0 {
			break
		}
		pos = next
	}
	return "", 0, false
}

// deriveTitle returns the front matter "title", otherwise the first level-1
// heading, otherwise the file name without its extension.
func deriveTitle(fm map[string]any, doc ast.Node, body []byte, notePath string) string {
	if t, ok := fm["title"].(string); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Level != 1 {
			continue
		}
		if t := headingText(h, body); t != "" {
			return t
		}
	}

	base := path.Base(strings.ReplaceAll(notePath, "\\", "/"))
	return strings.TrimSpace(strings.TrimSuffix(base, path.Ext(base)))
}

func headingText(h *ast.Heading, body []byte) string {
	var b strings.Builder
	_ = ast.Walk(h, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			b.Write(t.Segment.Value(body))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// extractAliases reads "aliases" (or the singular "alias") from front matter.
func extractAliases(fm map[string]any) ([]string, error) {
	raw, ok := fm["aliases"]
	if !ok {
		raw, ok = fm["alias"]
	}
	if !ok || raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}, nil
		}
		return nil, nil
	case []any:
		var out []string
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, errAliasType
	}
}
