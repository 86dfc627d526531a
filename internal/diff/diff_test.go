package diff

import (
	"strings"
	"testing"
)

func TestChunkPreviewLines(t *testing.T) {
	before := "alpha\nbeta\n"
	after := "alpha\ngamma\n"
	p := ChunkPreview(before, after, 10)
	if p.Added != 1 || p.Removed != 1 {
		t.Fatalf("expected one added and one removed line, got %s", p.Summary())
	}
	var removed, added Line
	for _, line := range p.Lines {
		switch line.Type {
		case LineAdded:
			added = line
		case LineRemoved:
			removed = line
		}
	}
	if removed.Text != "beta" || removed.OldLine != 11 {
		t.Fatalf("unexpected removed line: %+v", removed)
	}
	if added.Text != "gamma" || added.NewLine != 11 {
		t.Fatalf("unexpected added line: %+v", added)
	}
}

func TestChunkPreviewUnified(t *testing.T) {
	out := ChunkPreview("  return 1;", "  return 2;", 2).Unified()
	if !strings.Contains(out, "-   return 1;") || !strings.Contains(out, "+   return 2;") {
		t.Fatalf("unexpected unified output:\n%s", out)
	}
}

func TestChunkPreviewTruncates(t *testing.T) {
	p := chunkPreview("a\nb\nc", "d\ne\nf", 1, 4)
	if !p.Truncated || len(p.Lines) != 0 {
		t.Fatalf("expected truncated preview")
	}
	if !strings.Contains(p.Unified(), "too large") {
		t.Fatalf("expected truncation note")
	}
}

func TestLineAt(t *testing.T) {
	content := "one\ntwo\nthree"
	if got := LineAt(content, 0); got != 1 {
		t.Fatalf("expected line 1, got %d", got)
	}
	if got := LineAt(content, strings.Index(content, "three")); got != 3 {
		t.Fatalf("expected line 3, got %d", got)
	}
	if got := LineAt(content, 999); got != 3 {
		t.Fatalf("expected clamp to last line, got %d", got)
	}
}
