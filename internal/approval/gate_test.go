package approval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"anchoredit/engine/internal/docstore"
	"anchoredit/engine/internal/errinfo"
	"anchoredit/engine/internal/patch"
	"anchoredit/engine/internal/tools"
)

const source = "function foo(){\n  return 1;\n}\n"

func setup(t *testing.T) (*Gate, docstore.Store, string) {
	t.Helper()
	docs := docstore.NewMemoryStore()
	doc, err := docs.Create(context.Background(), "foo.js", source)
	require.NoError(t, err)
	return New(docs), docs, doc.ID
}

func proposal(fileID string) patch.Proposal {
	return patch.Proposal{
		FileID:            fileID,
		Explanation:       "return 2",
		OriginalStartLine: 2,
		OriginalEndLine:   2,
		ContextBefore:     "function foo(){\n",
		ContextAfter:      "\n}\n",
		NewChunkContent:   "  return 2;",
	}
}

func TestProposeHoldsSinglePending(t *testing.T) {
	g, _, id := setup(t)
	ctx := context.Background()
	var requested []Pending
	g.onRequested = func(p Pending) { requested = append(requested, p) }

	details, err := g.Propose(ctx, "call-1", proposal(id), map[string]any{"file_id": id})
	require.NoError(t, err)
	require.NotEmpty(t, details["proposal_id"])
	require.Len(t, requested, 1)

	_, err = g.Propose(ctx, "call-2", proposal(id), nil)
	require.ErrorIs(t, err, tools.ErrProposalPending)

	pending, ok := g.Pending()
	require.True(t, ok)
	require.Equal(t, "call-1", pending.CallID)
}

func TestApproveAppliesThroughStore(t *testing.T) {
	g, docs, id := setup(t)
	ctx := context.Background()
	_, err := g.Propose(ctx, "call-1", proposal(id), nil)
	require.NoError(t, err)

	resp, err := g.Approve(ctx)
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Error)
	require.Equal(t, "call-1", resp.ID)
	require.Equal(t, tools.ToolApplyChunkUpdate, resp.Name)
	require.Equal(t, true, resp.Data["changed"])

	content, err := docs.Content(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "function foo(){\n  return 2;\n}\n", content)

	_, ok := g.Pending()
	require.False(t, ok)
	_, err = g.Approve(ctx)
	require.ErrorIs(t, err, ErrNoPending)
	_, err = g.Reject("late")
	require.ErrorIs(t, err, ErrNoPending)
}

func TestApproveLocationFailureLeavesDocument(t *testing.T) {
	g, docs, id := setup(t)
	ctx := context.Background()
	p := proposal(id)
	p.ContextBefore = "function bar(){\n"
	_, err := g.Propose(ctx, "call-1", p, nil)
	require.NoError(t, err)

	resp, err := g.Approve(ctx)
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "context_before not found")
	require.Equal(t, errinfo.CodeLocationFailed, resp.Data["error_code"])

	content, err := docs.Content(ctx, id)
	require.NoError(t, err)
	require.Equal(t, source, content)
	_, ok := g.Pending()
	require.False(t, ok)
}

func TestApproveUsesCurrentContent(t *testing.T) {
	g, docs, id := setup(t)
	ctx := context.Background()
	_, err := g.Propose(ctx, "call-1", proposal(id), nil)
	require.NoError(t, err)
	// The user edits the document while the proposal waits; the anchors still locate.
	require.NoError(t, docs.SetContent(ctx, id, "// header\n"+source))

	resp, err := g.Approve(ctx)
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Error)
	content, err := docs.Content(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "// header\nfunction foo(){\n  return 2;\n}\n", content)
}

func TestRejectAndRefine(t *testing.T) {
	g, docs, id := setup(t)
	ctx := context.Background()
	args := map[string]any{"file_id": id, "new_chunk_content": "  return 2;"}

	_, err := g.Propose(ctx, "call-1", proposal(id), args)
	require.NoError(t, err)
	resp, err := g.Decide(ctx, DecisionReject, "not now")
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, ErrorUserRejected, resp.Error)
	require.Equal(t, "not now", resp.Data["feedback"])

	_, err = g.Propose(ctx, "call-2", proposal(id), args)
	require.NoError(t, err)
	resp, err = g.Decide(ctx, DecisionRefine, "use a constant")
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, ErrorRefinementRequested, resp.Error)
	require.Equal(t, args, resp.Data["original_args"])

	content, err := docs.Content(ctx, id)
	require.NoError(t, err)
	require.Equal(t, source, content)

	_, err = g.Decide(ctx, Decision("maybe"), "")
	require.True(t, errors.Is(err, ErrUnknownDecision))
}

func TestConcurrentDecisionsProduceOneResponse(t *testing.T) {
	g, _, id := setup(t)
	ctx := context.Background()
	_, err := g.Propose(ctx, "call-1", proposal(id), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	responses := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = g.Approve(ctx)
			} else {
				_, err = g.Reject("no")
			}
			if err == nil {
				mu.Lock()
				responses++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, responses)
}

func TestPreview(t *testing.T) {
	g, _, id := setup(t)
	ctx := context.Background()
	_, err := g.Preview(ctx)
	require.ErrorIs(t, err, ErrNoPending)

	_, err = g.Propose(ctx, "call-1", proposal(id), nil)
	require.NoError(t, err)
	preview, err := g.Preview(ctx)
	require.NoError(t, err)
	require.Equal(t, "foo.js", preview.DocumentName)
	require.Equal(t, 1, preview.Diff.Added)
	require.Equal(t, 1, preview.Diff.Removed)
	require.False(t, preview.WholeDocument)
	for _, line := range preview.Diff.Lines {
		if line.Text == "  return 1;" {
			require.Equal(t, 2, line.OldLine)
		}
	}
}

func TestPreviewFlagsWholeDocument(t *testing.T) {
	g, _, id := setup(t)
	ctx := context.Background()
	p := proposal(id)
	p.ContextBefore, p.ContextAfter = "", ""
	_, err := g.Propose(ctx, "call-1", p, nil)
	require.NoError(t, err)
	preview, err := g.Preview(ctx)
	require.NoError(t, err)
	require.True(t, preview.WholeDocument)
}
