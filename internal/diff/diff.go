package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type Line struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	OldLine int    `json:"old_line,omitempty"`
	NewLine int    `json:"new_line,omitempty"`
}

// Preview is a line-level diff of a located chunk against proposed content.
type Preview struct {
	Lines     []Line `json:"lines"`
	Added     int    `json:"added"`
	Removed   int    `json:"removed"`
	Truncated bool   `json:"truncated,omitempty"`
}

const (
	LineContext = "context"
	LineAdded   = "added"
	LineRemoved = "removed"
)

const MaxDiffLines = 5000

// ChunkPreview diffs before against after line by line. firstLine is the
// 1-based document line at which before starts, so numbers match the document.
func ChunkPreview(before, after string, firstLine int) Preview {
	return chunkPreview(before, after, firstLine, MaxDiffLines)
}

func chunkPreview(before, after string, firstLine, maxLines int) Preview {
	if firstLine < 1 {
		firstLine = 1
	}
	if lineCount(before)+lineCount(after) > maxLines {
		return Preview{Truncated: true}
	}
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var p Preview
	oldLine := firstLine
	newLine := firstLine
	for _, d := range diffs {
		chunkLines := strings.Split(d.Text, "\n")
		if len(chunkLines) > 0 && chunkLines[len(chunkLines)-1] == "" {
			chunkLines = chunkLines[:len(chunkLines)-1]
		}
		for _, line := range chunkLines {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				p.Lines = append(p.Lines, Line{Type: LineContext, Text: line, OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				p.Lines = append(p.Lines, Line{Type: LineRemoved, Text: line, OldLine: oldLine})
				p.Removed++
				oldLine++
			case diffmatchpatch.DiffInsert:
				p.Lines = append(p.Lines, Line{Type: LineAdded, Text: line, NewLine: newLine})
				p.Added++
				newLine++
			}
		}
	}
	return p
}

// Unified renders the preview with +/- markers, one line per entry.
func (p Preview) Unified() string {
	if p.Truncated {
		return "(diff too large to preview)\n"
	}
	var b strings.Builder
	for _, line := range p.Lines {
		b.WriteString(Marker(line.Type))
		b.WriteString(line.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// Summary reports added and removed counts.
func (p Preview) Summary() string {
	return fmt.Sprintf("+%d -%d", p.Added, p.Removed)
}

// Marker returns the unified-diff prefix for a line type.
func Marker(lineType string) string {
	switch lineType {
	case LineAdded:
		return "+ "
	case LineRemoved:
		return "- "
	default:
		return "  "
	}
}

// LineAt returns the 1-based line number containing byte offset off.
func LineAt(content string, off int) int {
	if off > len(content) {
		off = len(content)
	}
	if off < 0 {
		off = 0
	}
	return strings.Count(content[:off], "\n") + 1
}

func lineCount(value string) int {
	if value == "" {
		return 0
	}
	return strings.Count(value, "\n") + 1
}
