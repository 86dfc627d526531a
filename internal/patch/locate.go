package patch

import (
	"fmt"
	"strings"
)

const anchorPreviewLen = 60

// Located is a chunk found between two anchors. It is recomputed on every
// apply and never cached.
type Located struct {
	CharStart int
	CharEnd   int
	Text      string
}

// LocationError reports an anchor that could not be found. The document is
// only ever searched, never modified, when this is returned.
type LocationError struct {
	Anchor        string // "before" or "after"
	BeforePreview string
	AfterPreview  string
}

func (e *LocationError) Error() string {
	if e.Anchor == "after" {
		return fmt.Sprintf("context_after not found after context_before (before=%q, after=%q)", e.BeforePreview, e.AfterPreview)
	}
	return fmt.Sprintf("context_before not found (before=%q, after=%q)", e.BeforePreview, e.AfterPreview)
}

// WholeDocument reports whether Locate would treat the whole non-empty
// document as the chunk because both anchors are empty.
func WholeDocument(full, before, after string) bool {
	return before == "" && after == "" && full != ""
}

// Locate finds the text strictly between the first occurrence of before and
// the first occurrence of after that follows it.
func Locate(full, before, after string) (Located, error) {
	if before == "" && after == "" {
		// Empty document: whole-file insertion. Non-empty: the entire document
		// is the chunk.
		return Located{CharStart: 0, CharEnd: len(full), Text: full}, nil
	}
	idx := strings.Index(full, before)
	if idx < 0 {
		return Located{}, &LocationError{Anchor: "before", BeforePreview: preview(before), AfterPreview: preview(after)}
	}
	start := idx + len(before)
	rel := strings.Index(full[start:], after)
	if rel < 0 {
		return Located{}, &LocationError{Anchor: "after", BeforePreview: preview(before), AfterPreview: preview(after)}
	}
	end := start + rel
	return Located{CharStart: start, CharEnd: end, Text: full[start:end]}, nil
}

func preview(anchor string) string {
	if len(anchor) <= anchorPreviewLen {
		return anchor
	}
	cut := anchorPreviewLen
	for cut > 0 && !isRuneStart(anchor[cut]) {
		cut--
	}
	return anchor[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
