package linker

import (
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/starford/autolink/internal/models"
)

// Source pairs a parsed note with the raw content its spans index into.
type Source struct {
	Note    *models.Note
	Content string
}

// ScanNote runs the pattern over every linkable span of one note and returns
// at most one reference per span, in span order. Spans that cannot be read
// are skipped.
func ScanNote(p *CompiledPattern, src Source, logger *slog.Logger) []models.Reference {
	var refs []models.Reference
	for _, span := range src.Note.Spans {
		text, err := readSpan(src.Content, span)
		if err != nil {
			logger.Debug("scan: span skipped",
				slog.String("path", src.Note.Path),
				slog.Int("start", span.Start),
				slog.String("error", err.Error()))
			continue
		}

		m, ok, err := p.FindFirst(text)
		if err != nil {
			logger.Warn("scan: match failed",
				slog.String("path", src.Note.Path),
				slog.Int("start", span.Start),
				slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}

		refs = append(refs, models.Reference{
			Source:      src.Note.Path,
			Target:      m.Target,
			MatchedText: m.Text,
			Start:       span.Start + m.Start,
			End:         span.Start + m.End,
		})
	}
	return refs
}

// readSpan checks that span still describes a piece of text inside content.
func readSpan(content string, span models.Span) (string, error) {
	if span.Start < 0 || span.End > len(content) || span.Start >= span.End {
		return "", fmt.Errorf("%w: [%d,%d) outside content of %d bytes",
			ErrSpanUnreadable, span.Start, span.End, len(content))
	}
	text := content[span.Start:span.End]
	if text != span.Text {
		return "", fmt.Errorf("%w: [%d,%d) does not hold the span text", ErrSpanUnreadable, span.Start, span.End)
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: [%d,%d) is not valid UTF-8", ErrSpanUnreadable, span.Start, span.End)
	}
	return text, nil
}
