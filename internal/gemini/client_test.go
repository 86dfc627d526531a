package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genai"

	"anchoredit/engine/internal/llm"
)

func TestToContentsMapsRolesAndParts(t *testing.T) {
	history := []llm.Turn{
		{Role: llm.RoleUser, Parts: []llm.Part{{Text: "rename foo"}}},
		{Role: llm.RoleModel, Parts: []llm.Part{{ToolCall: &llm.ToolCall{ID: "c1", Name: "get_document_context", Args: map[string]any{"file_id": "f"}}}}},
		{Role: llm.RoleTool, Parts: []llm.Part{{ToolResponse: &llm.ToolResponse{ID: "c1", Name: "get_document_context", Success: true, Data: map[string]any{"content": "x"}}}}},
		{Role: llm.RoleModel, Parts: []llm.Part{{}}},
	}
	contents := toContents(history)
	if len(contents) != 3 {
		t.Fatalf("expected empty turn to be dropped, got %d contents", len(contents))
	}
	if contents[0].Role != string(genai.RoleUser) || contents[1].Role != string(genai.RoleModel) || contents[2].Role != string(genai.RoleUser) {
		t.Fatalf("unexpected roles: %q %q %q", contents[0].Role, contents[1].Role, contents[2].Role)
	}
	call := contents[1].Parts[0].FunctionCall
	if call == nil || call.Name != "get_document_context" || call.ID != "c1" {
		t.Fatalf("unexpected function call: %+v", call)
	}
	fr := contents[2].Parts[0].FunctionResponse
	if fr == nil || fr.Response["success"] != true || fr.Response["content"] != "x" {
		t.Fatalf("unexpected function response: %+v", fr)
	}
}

func TestToDeclarations(t *testing.T) {
	decls := toDeclarations([]llm.Tool{{
		Name: "grep_files",
		Params: []llm.Param{
			{Name: "file_id_patterns", Type: "array", Items: "string", Required: true},
			{Name: "pattern", Type: "string", Required: true},
			{Name: "context_lines", Type: "integer"},
		},
	}})
	if len(decls) != 1 {
		t.Fatalf("expected one declaration")
	}
	params := decls[0].Parameters
	if params.Type != genai.TypeObject || len(params.Required) != 2 {
		t.Fatalf("unexpected schema: %+v", params)
	}
	if params.Properties["file_id_patterns"].Items == nil || params.Properties["file_id_patterns"].Items.Type != genai.TypeString {
		t.Fatalf("expected string items")
	}
	if params.Properties["context_lines"].Type != genai.TypeInteger {
		t.Fatalf("expected integer type")
	}
}

func TestFromResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking", Thought: true},
				{Text: "Let me look."},
				{FunctionCall: &genai.FunctionCall{Name: "fetch_rules", Args: map[string]any{"rule_name": "style"}}},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 12, CandidatesTokenCount: 7},
	}
	reply := fromResponse(resp)
	if reply.Usage.InputTokens != 12 || reply.Usage.OutputTokens != 7 {
		t.Fatalf("unexpected usage: %+v", reply.Usage)
	}
	parts := reply.Candidates[0].Parts
	if len(parts) != 2 || parts[0].Text != "Let me look." {
		t.Fatalf("unexpected parts: %+v", parts)
	}
	if parts[1].ToolCall == nil || parts[1].ToolCall.ID == "" {
		t.Fatalf("expected tool call with generated id")
	}
	if reply.Candidates[0].FinishReason != llm.FinishStop {
		t.Fatalf("unexpected finish reason %q", reply.Candidates[0].FinishReason)
	}
}

func TestFromResponseBlocked(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{
			BlockReason:        genai.BlockedReasonSafety,
			BlockReasonMessage: "blocked",
			SafetyRatings: []*genai.SafetyRating{
				{Category: genai.HarmCategoryHarassment, Blocked: true},
			},
		},
	}
	err := llm.CheckBlocked(fromResponse(resp))
	var blocked *llm.BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected blocked error, got %v", err)
	}
	if blocked.Message != "blocked" || len(blocked.Categories) != 1 {
		t.Fatalf("unexpected blocked error: %+v", blocked)
	}
}

func TestMapError(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{401, llm.ErrUnauthorized},
		{429, llm.ErrRateLimited},
		{503, llm.ErrUnavailable},
	}
	for _, tc := range cases {
		err := mapError(fmt.Errorf("call: %w", genai.APIError{Code: tc.code, Message: "m"}))
		if !errors.Is(err, tc.want) {
			t.Fatalf("code %d: expected %v, got %v", tc.code, tc.want, err)
		}
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{}); !errors.Is(err, llm.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
