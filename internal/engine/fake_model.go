package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"anchoredit/engine/internal/docstore"
	"anchoredit/engine/internal/llm"
	"anchoredit/engine/internal/session"
	"anchoredit/engine/internal/tools"
)

// Markers recognised in user messages by the fake model.
const (
	fakeNetworkMarker = "[network-error]"
	fakeBlockedMarker = "[blocked]"
	fakeLoopMarker    = "[loop]"
	fakeGrepMarker    = "[grep]"
	fakeMixedMarker   = "[mixed]"
)

var fakeReplacePattern = regexp.MustCompile(`(?s)replace "(.*?)" with "(.*?)"`)

// fakeModel is a deterministic model used for end-to-end runs without
// network access. It proposes edits when asked to replace text and answers
// plainly otherwise.
type fakeModel struct {
	docs docstore.Store
}

func newFakeModel(docs docstore.Store) llm.ModelService {
	return &fakeModel{docs: docs}
}

type fakeNetErr struct{}

func (fakeNetErr) Error() string   { return "network unavailable" }
func (fakeNetErr) Timeout() bool   { return true }
func (fakeNetErr) Temporary() bool { return true }

func (f *fakeModel) Send(ctx context.Context, req llm.Request) (*llm.Reply, error) {
	if len(req.History) == 0 {
		return fakeText("Nothing to do."), nil
	}
	last := req.History[len(req.History)-1]
	lastUser := lastUserText(req.History)
	if strings.Contains(lastUser, fakeLoopMarker) {
		return fakeCall(tools.ToolFetchRules, map[string]any{"rule_name": "editing"}), nil
	}
	if last.Role == llm.RoleTool {
		return fakeText(summarizeResponses(last)), nil
	}
	if strings.HasPrefix(lastUser, session.DecisionPrefix) {
		return fakeText("Noted your decision on the earlier proposal."), nil
	}
	switch {
	case strings.Contains(lastUser, fakeNetworkMarker):
		return nil, fakeNetErr{}
	case strings.Contains(lastUser, fakeBlockedMarker):
		return &llm.Reply{PromptFeedback: &llm.PromptFeedback{BlockReason: "SAFETY", BlockMessage: "blocked by fake model"}}, nil
	case strings.Contains(lastUser, fakeGrepMarker):
		pattern := strings.TrimSpace(strings.SplitN(lastUser, fakeGrepMarker, 2)[1])
		return fakeCall(tools.ToolGrepFiles, map[string]any{"file_id_patterns": []any{"*"}, "pattern": pattern}), nil
	}
	if m := fakeReplacePattern.FindStringSubmatch(lastUser); m != nil {
		args, err := f.proposal(ctx, activeFileID(req.System), m[1], m[2])
		if err != nil {
			return fakeText(err.Error()), nil
		}
		if strings.Contains(lastUser, fakeMixedMarker) {
			read := map[string]any{"file_id": args["file_id"], "start_line": 1, "end_line": args["original_end_line"]}
			return fakeCalls(
				&llm.ToolCall{ID: uuid.NewString(), Name: tools.ToolGetDocumentContext, Args: read},
				&llm.ToolCall{ID: uuid.NewString(), Name: tools.ToolApplyChunkUpdate, Args: args},
			), nil
		}
		return fakeCall(tools.ToolApplyChunkUpdate, args), nil
	}
	return fakeText("Acknowledged: " + lastUser), nil
}

// proposal anchors the first occurrence of target with the text around it.
func (f *fakeModel) proposal(ctx context.Context, fileID, target, replacement string) (map[string]any, error) {
	content, err := f.docs.Content(ctx, fileID)
	if err != nil {
		return nil, err
	}
	idx := strings.Index(content, target)
	if idx < 0 || target == "" {
		return nil, fmt.Errorf("could not find %q in the document", target)
	}
	before := content[:idx]
	after := content[idx+len(target):]
	newChunk := replacement
	if after == "" {
		before, newChunk = "", before+replacement
	}
	line := strings.Count(before, "\n") + 1
	return map[string]any{
		"file_id":              fileID,
		"explanation":          fmt.Sprintf("Replace %q with %q", target, replacement),
		"original_start_line":  line,
		"original_end_line":    line + strings.Count(target, "\n"),
		"context_before_chunk": before,
		"context_after_chunk":  after,
		"new_chunk_content":    newChunk,
	}, nil
}

func summarizeResponses(turn llm.Turn) string {
	var parts []string
	for _, p := range turn.Parts {
		resp := p.ToolResponse
		if resp == nil {
			continue
		}
		switch {
		case resp.Pending():
			parts = append(parts, "Proposed a change; waiting for your decision.")
		case resp.Success:
			parts = append(parts, fmt.Sprintf("%s succeeded.", resp.Name))
		default:
			parts = append(parts, fmt.Sprintf("%s failed: %s.", resp.Name, resp.Error))
		}
	}
	if len(parts) == 0 {
		return "Done."
	}
	return strings.Join(parts, " ")
}

func lastUserText(history []llm.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == llm.RoleUser {
			return history[i].Text()
		}
	}
	return ""
}

func activeFileID(system string) string {
	const marker = "- file_id: "
	idx := strings.Index(system, marker)
	if idx < 0 {
		return ""
	}
	rest := system[idx+len(marker):]
	if end := strings.IndexByte(rest, '\n'); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func fakeText(text string) *llm.Reply {
	return &llm.Reply{
		Candidates: []llm.Candidate{{Parts: []llm.Part{{Text: text}}, FinishReason: llm.FinishStop}},
		Usage:      llm.Usage{InputTokens: 1, OutputTokens: len(strings.Fields(text))},
	}
}

func fakeCall(name string, args map[string]any) *llm.Reply {
	return fakeCalls(&llm.ToolCall{ID: uuid.NewString(), Name: name, Args: args})
}

func fakeCalls(calls ...*llm.ToolCall) *llm.Reply {
	parts := make([]llm.Part, 0, len(calls))
	for _, call := range calls {
		parts = append(parts, llm.Part{ToolCall: call})
	}
	return &llm.Reply{
		Candidates: []llm.Candidate{{Parts: parts, FinishReason: llm.FinishStop}},
		Usage:      llm.Usage{InputTokens: 1, OutputTokens: len(calls)},
	}
}
