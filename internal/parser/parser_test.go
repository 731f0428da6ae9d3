package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/autolink/internal/models"
)

func spanTexts(spans []models.Span) []string {
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Text
	}
	return out
}

func assertOffsets(t *testing.T, content string, spans []models.Span) {
	t.Helper()
	for _, s := range spans {
		if s.Start < 0 || s.End > len(content) || s.Start >= s.End {
			t.Fatalf("span out of range: %+v", s)
		}
		if content[s.Start:s.End] != s.Text {
			t.Errorf("span text %q does not match content[%d:%d] = %q", s.Text, s.Start, s.End, content[s.Start:s.End])
		}
	}
}

func TestParse_FrontmatterTitleAndAliases(t *testing.T) {
	content := "---\ntitle: Hello\naliases:\n  - Hi\n  - Hey\n---\nBody text.\n"
	n, err := New().Parse("hello.md", []byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Title != "Hello" {
		t.Errorf("title = %q, want %q", n.Title, "Hello")
	}
	if len(n.Aliases) != 2 || n.Aliases[0] != "Hi" || n.Aliases[1] != "Hey" {
		t.Errorf("aliases = %v, want [Hi Hey]", n.Aliases)
	}
	if len(n.Spans) != 1 {
		t.Fatalf("spans = %v, want 1", spanTexts(n.Spans))
	}
	if n.Spans[0].Text != "Body text." {
		t.Errorf("span = %q", n.Spans[0].Text)
	}
	if n.Spans[0].Start != strings.Index(content, "Body") {
		t.Errorf("span start = %d, want %d", n.Spans[0].Start, strings.Index(content, "Body"))
	}
	assertOffsets(t, content, n.Spans)
}

func TestParse_HeadingTitle(t *testing.T) {
	content := "# Just a heading\nSome text.\n"
	n, err := New().Parse("x.md", []byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", n.Title, "Just a heading")
	}
	for _, s := range n.Spans {
		if strings.Contains(s.Text, "heading") {
			t.Errorf("heading text should not be linkable: %q", s.Text)
		}
	}
}

func TestParse_FrontmatterTitleOverHeading(t *testing.T) {
	content := "---\ntitle: FM Title\n---\n# H1 Title\ntext\n"
	n, err := New().Parse("x.md", []byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Title != "FM Title" {
		t.Errorf("title = %q, want %q", n.Title, "FM Title")
	}
}

func TestParse_FilenameTitle(t *testing.T) {
	n, err := New().Parse("dir/My Note.md", []byte("plain words\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Title != "My Note" {
		t.Errorf("title = %q, want %q", n.Title, "My Note")
	}
}

func TestParse_UnterminatedFrontmatterIsBody(t *testing.T) {
	n, err := New().Parse("note.md", []byte("---\ntitle: X\nbody\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Title != "note" {
		t.Errorf("title = %q, want %q", n.Title, "note")
	}
}

func TestParse_InvalidFrontmatter(t *testing.T) {
	_, err := New().Parse("bad.md", []byte("---\ntitle: [unclosed\n---\nBody\n"))
	if !errors.Is(err, ErrInvalidFrontmatter) {
		t.Fatalf("err = %v, want ErrInvalidFrontmatter", err)
	}
}

func TestParse_InvalidUTF8(t *testing.T) {
	_, err := New().Parse("bin.md", []byte{0xff, 0xfe, 0xfd})
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("err = %v, want ErrInvalidUTF8", err)
	}
}

func TestParse_AliasErrorsAbsorbed(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"map", "---\naliases:\n  key: value\n---\ntext\n", nil},
		{"number", "---\naliases: 42\n---\ntext\n", nil},
		{"single string", "---\nalias: Solo\n---\ntext\n", []string{"Solo"}},
		{"mixed list", "---\naliases:\n  - One\n  - 2\n  - \"  \"\n  - Three\n---\ntext\n", []string{"One", "Three"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := New().Parse("a.md", []byte(tt.content))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(n.Aliases, ",") != strings.Join(tt.want, ",") {
				t.Errorf("aliases = %v, want %v", n.Aliases, tt.want)
			}
		})
	}
}

func TestParse_CodeIsNotLinkable(t *testing.T) {
	content := "Use `Identity` here.\n\n```\nIdentity\n```\n\n    Identity indented\n"
	n, err := New().Parse("c.md", []byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, s := range n.Spans {
		if strings.Contains(s.Text, "Identity") {
			t.Errorf("code should not be linkable: %q", s.Text)
		}
	}
	if !strings.Contains(strings.Join(spanTexts(n.Spans), ""), "here.") {
		t.Errorf("expected prose around code span, got %v", spanTexts(n.Spans))
	}
	assertOffsets(t, content, n.Spans)
}

func TestParse_LinksAreNotLinkable(t *testing.T) {
	content := "See [Identity](b.md) and [[Identity]] or [[b|Identity]] now.\n"
	n, err := New().Parse("l.md", []byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, s := range n.Spans {
		if strings.Contains(s.Text, "Identity") {
			t.Errorf("existing link should not be linkable: %q", s.Text)
		}
	}
	if !strings.Contains(strings.Join(spanTexts(n.Spans), ""), "now.") {
		t.Errorf("expected trailing prose, got %v", spanTexts(n.Spans))
	}
	assertOffsets(t, content, n.Spans)
}

func TestParse_OneSpanPerLine(t *testing.T) {
	content := "first line\nsecond line\n"
	n, err := New().Parse("m.md", []byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := spanTexts(n.Spans)
	if len(got) != 2 || got[0] != "first line" || got[1] != "second line" {
		t.Errorf("spans = %q", got)
	}
}

func TestParse_OffsetsIndexRawContent(t *testing.T) {
	content := "---\ntitle: Offsets\naliases: [Off]\n---\n\nIntro with *emphasis* and **strong** words.\n\n" +
		"- list item one\n- list item [two](x.md)\n\n> quoted Café text\n\n| a | b |\n|---|---|\n| cell one | cell two |\n"
	n, err := New().Parse("o.md", []byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.Spans) == 0 {
		t.Fatal("expected spans")
	}
	assertOffsets(t, content, n.Spans)

	joined := strings.Join(spanTexts(n.Spans), "|")
	for _, want := range []string{"emphasis", "list item one", "quoted Café text", "cell one"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q in spans %q", want, joined)
		}
	}
	for i := 1; i < len(n.Spans); i++ {
		if n.Spans[i].Start < n.Spans[i-1].End {
			t.Errorf("spans out of document order: %+v then %+v", n.Spans[i-1], n.Spans[i])
		}
	}
}

func TestSplitFrontmatter(t *testing.T) {
	raw := "---\na: 1\n---\nbody"
	fm, off, ok := splitFrontmatter(raw)
	if !ok {
		t.Fatal("expected front matter")
	}
	if fm != "a: 1\n" {
		t.Errorf("fm = %q", fm)
	}
	if raw[off:] != "body" {
		t.Errorf("body = %q", raw[off:])
	}

	if _, _, ok := splitFrontmatter("no front matter\n---\n"); ok {
		t.Error("front matter must start on the first line")
	}
}

func TestSubtract(t *testing.T) {
	got := subtract(byteRange{0, 20}, []byteRange{{2, 5}, {8, 10}, {18, 25}})
	want := []byteRange{{0, 2}, {5, 8}, {10, 18}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("piece %d = %v, want %v", i, got[i], want[i])
		}
	}
}
