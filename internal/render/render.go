// Package render prints resolution results for humans. Colors are used only
// when writing to a terminal.
package render

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/starford/autolink/internal/models"
)

var (
	accent     = lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA"))
	accentBold = lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA")).Bold(true)
	muted      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	bold       = lipgloss.NewStyle().Bold(true)
)

// Printer writes results to w.
type Printer struct {
	w     io.Writer
	color bool
}

// New returns a Printer that colors its output when w is a terminal.
func New(w io.Writer) *Printer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Printer{w: w, color: color}
}

// NewPlain returns a Printer that never colors its output.
func NewPlain(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

// Position is a 1-based line and column.
type Position struct {
	Line, Column int
}

// PositionOf converts a byte offset in content into a line and a column
// counted in bytes.
func PositionOf(content []byte, offset int) Position {
	if offset > len(content) {
		offset = len(content)
	}
	before := content[:offset]
	line := bytes.Count(before, []byte{'\n'}) + 1
	col := offset - bytes.LastIndexByte(before, '\n')
	return Position{Line: line, Column: col}
}

// Result prints the references grouped by source note, then the failed
// notes and a summary line. docs supply the content used for line numbers;
// references whose source is missing from docs print byte offsets instead.
func (p *Printer) Result(res *models.Result, docs []models.Document) {
	content := make(map[string][]byte, len(docs))
	for _, d := range docs {
		content[d.Path] = d.Content
	}

	sources := 0
	current := ""
	for _, r := range res.References {
		if r.Source != current {
			if current != "" {
				fmt.Fprintln(p.w)
			}
			current = r.Source
			sources++
			fmt.Fprintln(p.w, p.style(accentBold, r.Source))
		}
		loc := fmt.Sprintf("@%d", r.Start)
		if c, ok := content[r.Source]; ok {
			pos := PositionOf(c, r.Start)
			loc = fmt.Sprintf("%d:%d", pos.Line, pos.Column)
		}
		fmt.Fprintf(p.w, "  %s  %s -> %s\n",
			p.style(muted, fmt.Sprintf("%-7s", loc)),
			p.style(bold, r.MatchedText),
			p.style(accent, r.Target))
	}

	if len(res.FailedPaths) > 0 {
		if current != "" {
			fmt.Fprintln(p.w)
		}
		fmt.Fprintln(p.w, p.style(bold, "Failed to parse:"))
		for i, path := range res.FailedPaths {
			reason := ""
			if i < len(res.Failures) && res.Failures[i].Path == path {
				reason = "  " + p.style(muted, res.Failures[i].Cause.Error())
			}
			fmt.Fprintf(p.w, "  %s%s\n", p.style(accent, path), reason)
		}
	}

	fmt.Fprintf(p.w, "\n%s\n", p.style(muted, fmt.Sprintf("%d references in %d notes, %d failed",
		len(res.References), sources, len(res.FailedPaths))))
}

// Applied prints one line per rewritten note.
func (p *Printer) Applied(path string, applied, skipped int, dryRun bool) {
	verb := "linked"
	if dryRun {
		verb = "would link"
	}
	line := fmt.Sprintf("%s %d", verb, applied)
	if skipped > 0 {
		line += fmt.Sprintf(", skipped %d", skipped)
	}
	fmt.Fprintf(p.w, "%s  %s\n", p.style(accent, path), p.style(muted, line))
}
