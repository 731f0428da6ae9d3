package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark/ast"

	"github.com/starford/autolink/internal/models"
)

// wikilinkRe matches existing [[target]] and [[target|alias]] links, which
// goldmark does not understand and would otherwise leave as plain text.
var wikilinkRe = regexp.MustCompile(`\[\[[^\[\]\n]*\]\]`)

type byteRange struct {
	start, stop int
}

// collectSpans walks the body AST and returns every run of plain text that
// may receive a link, in document order. Offsets are shifted by bodyOffset so
// they index into the full raw content.
func collectSpans(doc ast.Node, raw string, bodyOffset int) []models.Span {
	body := raw[bodyOffset:]
	runs := textRuns(doc)
	excluded := wikilinkRanges(body)

	var out []models.Span
	for _, r := range runs {
		for _, piece := range subtract(r, excluded) {
			if strings.TrimSpace(body[piece.start:piece.stop]) == "" {
				continue
			}
			out = append(out, models.Span{
				Start: bodyOffset + piece.start,
				End:   bodyOffset + piece.stop,
				Text:  body[piece.start:piece.stop],
			})
		}
	}
	return out
}

// textRuns merges byte-contiguous ast.Text nodes. Goldmark splits text at
// characters such as '[' so a single sentence fragment is often several nodes.
// A run ends at a line break or at any node that is not plain text.
func textRuns(doc ast.Node) []byteRange {
	var (
		runs []byteRange
		cur  *byteRange
	)
	flush := func() {
		if cur != nil && cur.stop > cur.start {
			runs = append(runs, *cur)
		}
		cur = nil
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading, *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock,
			*ast.CodeSpan, *ast.Link, *ast.Image, *ast.AutoLink, *ast.RawHTML:
			flush()
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			seg := node.Segment
			if cur != nil && seg.Start == cur.stop {
				cur.stop = seg.Stop
			} else {
				flush()
				cur = &byteRange{start: seg.Start, stop: seg.Stop}
			}
			if node.SoftLineBreak() || node.HardLineBreak() {
				flush()
			}
		}
		return ast.WalkContinue, nil
	})
	flush()

	return runs
}

func wikilinkRanges(body string) []byteRange {
	idx := wikilinkRe.FindAllStringIndex(body, -1)
	out := make([]byteRange, len(idx))
	for i, m := range idx {
		out[i] = byteRange{start: m[0], stop: m[1]}
	}
	return out
}

// subtract removes the excluded ranges (sorted, non-overlapping) from r.
func subtract(r byteRange, excluded []byteRange) []byteRange {
	i := sort.Search(len(excluded), func(i int) bool { return excluded[i].stop > r.start })

	var out []byteRange
	pos := r.start
	for ; i < len(excluded) && excluded[i].start < r.stop; i++ {
		if excluded[i].start > pos {
			out = append(out, byteRange{start: pos, stop: excluded[i].start})
		}
		if excluded[i].stop > pos {
			pos = excluded[i].stop
		}
	}
	if pos < r.stop {
		out = append(out, byteRange{start: pos, stop: r.stop})
	}
	return out
}
