package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/starford/autolink/internal/models"
)

func TestPositionOf(t *testing.T) {
	content := []byte("first line\nsecond Identity\n")
	tests := []struct {
		offset int
		want   Position
	}{
		{0, Position{1, 1}},
		{6, Position{1, 7}},
		{11, Position{2, 1}},
		{18, Position{2, 8}},
		{500, Position{3, 1}},
	}
	for _, tt := range tests {
		if got := PositionOf(content, tt.offset); got != tt.want {
			t.Errorf("PositionOf(%d) = %+v, want %+v", tt.offset, got, tt.want)
		}
	}
}

func TestResult_Plain(t *testing.T) {
	docs := []models.Document{
		{Path: "a.md", Content: []byte("# A\n\nSee Identity.\n")},
	}
	res := &models.Result{
		References: []models.Reference{
			{Source: "a.md", Target: "identity.md", MatchedText: "Identity", Start: 9, End: 17},
			{Source: "b.md", Target: "identity.md", MatchedText: "identity", Start: 40, End: 48},
		},
		FailedPaths: []string{"broken.md"},
		Failures:    []*models.ParseFailure{{Path: "broken.md", Cause: errors.New("no title")}},
	}

	var buf bytes.Buffer
	NewPlain(&buf).Result(res, docs)
	out := buf.String()

	for _, want := range []string{
		"a.md\n",
		"3:5",
		"Identity -> identity.md",
		"@40",
		"Failed to parse:",
		"broken.md  no title",
		"2 references in 2 notes, 1 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("plain output contains escape codes")
	}
}

func TestNew_NonTerminalIsPlain(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)
	if p.color {
		t.Error("buffer treated as a terminal")
	}
	p.Applied("a.md", 2, 1, true)
	if got := buf.String(); got != "a.md  would link 2, skipped 1\n" {
		t.Errorf("output = %q", got)
	}
}
