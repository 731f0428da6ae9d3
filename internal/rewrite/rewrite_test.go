package rewrite

import (
	"testing"

	"github.com/starford/autolink/internal/models"
)

func ref(target, text string, start int) models.Reference {
	return models.Reference{Source: "src.md", Target: target, MatchedText: text, Start: start, End: start + len(text)}
}

func TestLink(t *testing.T) {
	tests := []struct {
		ref  models.Reference
		want string
	}{
		{ref("Identity.md", "Identity", 0), "[[Identity]]"},
		{ref("math/Identity.md", "identity", 0), "[[math/Identity|identity]]"},
		{ref("ml.md", "Machine Learning", 0), "[[ml|Machine Learning]]"},
		{ref("Notes/Rust.MD", "Rust", 0), "[[Notes/Rust|Rust]]"},
		{ref("Go.Md", "Go", 0), "[[Go]]"},
		{ref("v1.2/release.notes", "release", 0), "[[v1.2/release.notes|release]]"},
	}
	for _, tt := range tests {
		if got := Link(tt.ref); got != tt.want {
			t.Errorf("Link(%+v) = %s, want %s", tt.ref, got, tt.want)
		}
	}
}

func TestApply(t *testing.T) {
	content := []byte("See Identity and Go for background.")
	refs := []models.Reference{
		ref("go.md", "Go", 17),
		ref("B.md", "Identity", 4),
	}

	got, out, err := Apply(content, refs)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := "See [[B|Identity]] and [[go|Go]] for background."
	if string(got) != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
	if out.Applied != 2 || out.Skipped != 0 {
		t.Errorf("outcome = %+v", out)
	}
	if string(content) != "See Identity and Go for background." {
		t.Error("input was modified")
	}
}

func TestApply_SkipsStaleAndOverlapping(t *testing.T) {
	content := []byte("Alpha Beta Gamma")
	refs := []models.Reference{
		ref("a.md", "Alpha", 0),
		ref("ab.md", "Alpha Beta", 0), // overlaps the first
		ref("x.md", "Delta", 11),      // stale
		ref("g.md", "Gamma", 11),
		ref("z.md", "Zeta", 40), // out of range
	}
	got, out, err := Apply(content, refs)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if string(got) != "[[a|Alpha]] Beta [[g|Gamma]]" {
		t.Errorf("got %q", got)
	}
	if out.Applied != 2 || out.Skipped != 3 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestApply_NoReferences(t *testing.T) {
	got, out, err := Apply([]byte("unchanged"), nil)
	if err != nil || string(got) != "unchanged" || out.Applied != 0 {
		t.Errorf("got %q %+v %v", got, out, err)
	}
}

func TestApply_AllStale(t *testing.T) {
	if _, _, err := Apply([]byte("abc"), []models.Reference{ref("x.md", "zzz", 0)}); err == nil {
		t.Error("expected error when nothing matches")
	}
}
