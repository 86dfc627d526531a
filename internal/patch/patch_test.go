package patch

import (
	"errors"
	"strings"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/require"
)

func TestLocateBetweenAnchors(t *testing.T) {
	cases := []struct {
		name   string
		full   string
		before string
		after  string
		want   string
	}{
		{name: "simple", full: "a<x>b", before: "<", after: ">", want: "x"},
		{name: "first before wins", full: "[1] [2]", before: "[", after: "]", want: "1"},
		{name: "after searched from chunk start", full: "END a START b END", before: "START", after: "END", want: " b "},
		{name: "adjacent anchors", full: "foo()bar", before: "(", after: ")", want: ""},
		{name: "empty after is insertion point", full: "head tail", before: "head", after: "", want: ""},
		{name: "empty before starts at zero", full: "abc;def", before: "", after: ";", want: "abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loc, err := Locate(tc.full, tc.before, tc.after)
			require.NoError(t, err)
			require.Equal(t, tc.want, loc.Text)
			require.Equal(t, tc.want, tc.full[loc.CharStart:loc.CharEnd])
		})
	}
}

func TestLocateEmptyAnchors(t *testing.T) {
	loc, err := Locate("", "", "")
	require.NoError(t, err)
	require.Equal(t, Located{}, loc)

	loc, err = Locate("whole doc", "", "")
	require.NoError(t, err)
	require.Equal(t, 0, loc.CharStart)
	require.Equal(t, len("whole doc"), loc.CharEnd)
	require.True(t, WholeDocument("whole doc", "", ""))
	require.False(t, WholeDocument("", "", ""))
}

func TestLocateFailures(t *testing.T) {
	_, err := Locate("alpha beta", "gamma", "beta")
	var locErr *LocationError
	require.ErrorAs(t, err, &locErr)
	require.Equal(t, "before", locErr.Anchor)
	require.Equal(t, "gamma", locErr.BeforePreview)

	_, err = Locate("alpha beta", "beta", "alpha")
	require.ErrorAs(t, err, &locErr)
	require.Equal(t, "after", locErr.Anchor)
	require.Contains(t, err.Error(), "context_after")

	long := strings.Repeat("x", 200)
	_, err = Locate("short", long, "")
	require.ErrorAs(t, err, &locErr)
	require.True(t, strings.HasSuffix(locErr.BeforePreview, "..."))
	require.Less(t, len(locErr.BeforePreview), 70)
}

func TestApplyChunkUpdateScenarioA(t *testing.T) {
	full := "function foo(){\n  return 1;\n}\n"
	res, err := ApplyChunkUpdate(full, Proposal{
		ContextBefore:   "function foo(){\n",
		ContextAfter:    "\n}\n",
		NewChunkContent: "  return 2;",
	})
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, "function foo(){\n  return 2;\n}\n", res.NewContent)
}

func TestApplyChunkUpdateMissingBeforeLeavesInputUntouched(t *testing.T) {
	full := "function foo(){\n  return 1;\n}\n"
	original := full
	res, err := ApplyChunkUpdate(full, Proposal{
		ContextBefore:   "function bar(){\n",
		ContextAfter:    "\n}\n",
		NewChunkContent: "  return 2;",
	})
	var locErr *LocationError
	require.True(t, errors.As(err, &locErr))
	require.Empty(t, res.NewContent)
	require.Equal(t, original, full)
}

func TestApplyChunkUpdateEmptyDocument(t *testing.T) {
	res, err := ApplyChunkUpdate("", Proposal{NewChunkContent: "hello"})
	require.NoError(t, err)
	require.Equal(t, "hello", res.NewContent)
}

func TestApplyChunkUpdateNoOpIsByteIdentical(t *testing.T) {
	full := "one\r\ntwo\r\nthree\r\n"
	res, err := ApplyChunkUpdate(full, Proposal{
		ContextBefore:   "one\n",
		ContextAfter:    "\nthree",
		NewChunkContent: "two",
	})
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Equal(t, full, res.NewContent)
}

func TestApplyChunkUpdateIdempotent(t *testing.T) {
	full := "header\nbody line 1\nbody line 2\nfooter\n"
	p := Proposal{
		ContextBefore:   "header\n",
		ContextAfter:    "\nfooter",
		NewChunkContent: "body line 1 (edited)\nbody line 2",
	}
	first, err := ApplyChunkUpdate(full, p)
	require.NoError(t, err)
	second, err := ApplyChunkUpdate(full, p)
	require.NoError(t, err)
	require.Equal(t, first.NewContent, second.NewContent)

	// Re-applying against the already-updated document is a no-op.
	third, err := ApplyChunkUpdate(first.NewContent, p)
	require.NoError(t, err)
	require.False(t, third.Changed)
	require.Equal(t, first.NewContent, third.NewContent)
}

func TestApplyChunkUpdatePartition(t *testing.T) {
	full := "package main\n\nfunc a() int {\n\treturn 1\n}\n\nfunc b() {}\n"
	p := Proposal{
		ContextBefore:   "func a() int {\n",
		ContextAfter:    "\n}\n\nfunc b",
		NewChunkContent: "\tx := 41\n\treturn x + 1",
	}
	res, err := ApplyChunkUpdate(full, p)
	require.NoError(t, err)
	loc, err := Locate(full, p.ContextBefore, p.ContextAfter)
	require.NoError(t, err)
	require.Equal(t, full[:loc.CharStart]+p.NewChunkContent+full[loc.CharEnd:], res.NewContent)
	require.True(t, strings.HasPrefix(res.NewContent, full[:loc.CharStart]))
	require.True(t, strings.HasSuffix(res.NewContent, full[loc.CharEnd:]))
}

func TestApplyChunkUpdateWholeDocumentWhenAnchorsEmpty(t *testing.T) {
	res, err := ApplyChunkUpdate("old body\n", Proposal{NewChunkContent: "new body\n"})
	require.NoError(t, err)
	require.Equal(t, "new body\n", res.NewContent)
}

func TestApplyFullContentDiff(t *testing.T) {
	res, err := ApplyFullContentDiff("alpha\nbeta\n", "alpha\ngamma\n")
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, "alpha\ngamma\n", res.NewContent)

	res, err = ApplyFullContentDiff("same", "same")
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Equal(t, "same", res.NewContent)

	res, err = ApplyFullContentDiff("", "fresh")
	require.NoError(t, err)
	require.Equal(t, "fresh", res.NewContent)
}

func TestNormalizeLineEndings(t *testing.T) {
	require.Equal(t, "a\nb\nc", NormalizeLineEndings("a\r\nb\rc"))
	require.Equal(t, "plain", NormalizeLineEndings("plain"))
}

func TestApplicationErrorMessage(t *testing.T) {
	err := &ApplicationError{FailedHunks: []int{0, 2}, TotalHunks: 3}
	require.Contains(t, err.Error(), "2 of 3")
	require.Contains(t, err.Error(), "[0 2]")
}

func swapPatchMaker(t *testing.T, fn func(*diffmatchpatch.DiffMatchPatch, string, string) []diffmatchpatch.Patch) {
	t.Helper()
	prev := makePatches
	makePatches = fn
	t.Cleanup(func() { makePatches = prev })
}

func TestApplyChunkUpdateDirectSubstitutionWhenNoPatches(t *testing.T) {
	swapPatchMaker(t, func(*diffmatchpatch.DiffMatchPatch, string, string) []diffmatchpatch.Patch { return nil })

	res, err := ApplyChunkUpdate("head\nold body\ntail\n", Proposal{
		ContextBefore:   "head\n",
		ContextAfter:    "tail\n",
		NewChunkContent: "new body\n",
	})
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, "head\nnew body\ntail\n", res.NewContent)
	require.Equal(t, "applied by direct substitution", res.Message)
}

func TestApplyChunkUpdateReportsFailedHunks(t *testing.T) {
	swapPatchMaker(t, func(dmp *diffmatchpatch.DiffMatchPatch, _, _ string) []diffmatchpatch.Patch {
		// Hunks built against unrelated text cannot match the chunk.
		return dmp.PatchMake("The quick brown fox jumps over the lazy dog", "The slow brown fox jumps over the lazy cat")
	})

	_, err := ApplyChunkUpdate("head\n0123456789\ntail\n", Proposal{
		ContextBefore:   "head\n",
		ContextAfter:    "tail\n",
		NewChunkContent: "9876543210\n",
	})
	var appErr *ApplicationError
	require.ErrorAs(t, err, &appErr)
	require.NotEmpty(t, appErr.FailedHunks)
	require.Equal(t, len(appErr.FailedHunks), appErr.TotalHunks)
}

func TestApplyChunkUpdateChangedOutputIsLF(t *testing.T) {
	res, err := ApplyChunkUpdate("a\r\nb\r\nc\r\n", Proposal{
		ContextBefore:   "a\r\n",
		ContextAfter:    "c\r\n",
		NewChunkContent: "B\r\n",
	})
	require.NoError(t, err)
	require.Equal(t, "a\nB\nc\n", res.NewContent)
}
