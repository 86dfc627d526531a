package patch

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Proposal is a model-proposed replacement of the chunk between two anchors.
// Line numbers are hints for the human only; location always uses the anchors.
type Proposal struct {
	FileID            string `json:"file_id"`
	Explanation       string `json:"explanation"`
	OriginalStartLine int    `json:"original_start_line"`
	OriginalEndLine   int    `json:"original_end_line"`
	ContextBefore     string `json:"context_before_chunk"`
	ContextAfter      string `json:"context_after_chunk"`
	NewChunkContent   string `json:"new_chunk_content"`
}

// Result is the outcome of a successful apply. Changed is false when the
// document already held the proposed content.
type Result struct {
	NewContent string
	Changed    bool
	Message    string
	Located    Located
}

// ApplicationError lists the zero-based indices of patch hunks that did not
// apply cleanly.
type ApplicationError struct {
	FailedHunks []int
	TotalHunks  int
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("failed to apply %d of %d patch hunks (indices %v)", len(e.FailedHunks), e.TotalHunks, e.FailedHunks)
}

// NormalizeLineEndings converts CRLF and lone CR to LF.
func NormalizeLineEndings(text string) string {
	if !strings.ContainsRune(text, '\r') {
		return text
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// ApplyChunkUpdate locates the proposal's chunk in fullText and replaces it
// with the proposed content. On error the caller's content is untouched.
func ApplyChunkUpdate(fullText string, p Proposal) (Result, error) {
	content := NormalizeLineEndings(fullText)
	before := NormalizeLineEndings(p.ContextBefore)
	after := NormalizeLineEndings(p.ContextAfter)
	proposed := NormalizeLineEndings(p.NewChunkContent)

	loc, err := Locate(content, before, after)
	if err != nil {
		return Result{}, err
	}
	if loc.Text == proposed {
		return Result{NewContent: fullText, Changed: false, Message: "chunk already matches proposed content", Located: loc}, nil
	}
	patched, msg, err := patchText(loc.Text, proposed)
	if err != nil {
		return Result{}, err
	}
	return Result{
		NewContent: content[:loc.CharStart] + patched + content[loc.CharEnd:],
		Changed:    true,
		Message:    msg,
		Located:    loc,
	}, nil
}

// ApplyFullContentDiff patches oldContent into newContent without chunk
// location, following the same fallback and failure rules.
func ApplyFullContentDiff(oldContent, newContent string) (Result, error) {
	oldNorm := NormalizeLineEndings(oldContent)
	newNorm := NormalizeLineEndings(newContent)
	if oldNorm == newNorm {
		return Result{NewContent: oldContent, Changed: false, Message: "content unchanged"}, nil
	}
	patched, msg, err := patchText(oldNorm, newNorm)
	if err != nil {
		return Result{}, err
	}
	return Result{NewContent: patched, Changed: true, Message: msg, Located: Located{CharEnd: len(oldNorm), Text: oldNorm}}, nil
}

// makePatches builds the hunks that turn original into proposed. Tests swap it
// to reach the substitution and failed-hunk paths.
var makePatches = func(dmp *diffmatchpatch.DiffMatchPatch, original, proposed string) []diffmatchpatch.Patch {
	diffs := dmp.DiffMain(original, proposed, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.PatchMake(original, diffs)
}

func patchText(original, proposed string) (string, string, error) {
	dmp := diffmatchpatch.New()
	patches := makePatches(dmp, original, proposed)
	if len(patches) == 0 {
		return proposed, "applied by direct substitution", nil
	}
	patched, applied := dmp.PatchApply(patches, original)
	var failed []int
	for i, ok := range applied {
		if !ok {
			failed = append(failed, i)
		}
	}
	if len(failed) > 0 {
		return "", "", &ApplicationError{FailedHunks: failed, TotalHunks: len(patches)}
	}
	return patched, fmt.Sprintf("applied %d patch hunk(s)", len(patches)), nil
}
