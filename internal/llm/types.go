package llm

import (
	"context"
	"strings"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// StatusPendingApproval marks a tool response whose effect waits on a human decision.
const StatusPendingApproval = "PENDING_USER_APPROVAL"

// Turn is one entry of the conversation history.
type Turn struct {
	ID           string `json:"id"`
	Role         Role   `json:"role"`
	Parts        []Part `json:"parts"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// Part holds exactly one of text, a tool call or a tool response.
type Part struct {
	Text         string        `json:"text,omitempty"`
	ToolCall     *ToolCall     `json:"tool_call,omitempty"`
	ToolResponse *ToolResponse `json:"tool_response,omitempty"`
}

// Text returns the concatenated text parts of the turn.
func (t Turn) Text() string {
	var b strings.Builder
	for _, p := range t.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// ToolCalls returns the tool calls of the turn in order.
func (t Turn) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range t.Parts {
		if p.ToolCall != nil {
			calls = append(calls, *p.ToolCall)
		}
	}
	return calls
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResponse is the uniform envelope returned for every tool call.
type ToolResponse struct {
	ID      string         `json:"id,omitempty"`
	Name    string         `json:"name"`
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Status  string         `json:"status,omitempty"`
}

// Pending reports whether the response waits on a human decision.
func (r ToolResponse) Pending() bool {
	return r.Status == StatusPendingApproval
}

// Payload flattens the envelope into the map sent back to the model.
func (r ToolResponse) Payload() map[string]any {
	out := make(map[string]any, len(r.Data)+3)
	for k, v := range r.Data {
		out[k] = v
	}
	out["success"] = r.Success
	if r.Error != "" {
		out["error"] = r.Error
	}
	if r.Status != "" {
		out["status"] = r.Status
	}
	return out
}

// Tool declares a callable function for the model.
type Tool struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
}

// Param is one declared argument. Type is one of string, integer, number,
// boolean or array; Items names the element type of an array.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Items       string `json:"items,omitempty"`
}

// RequiredParams lists the names of required parameters in declaration order.
func (t Tool) RequiredParams() []string {
	var out []string
	for _, p := range t.Params {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// Request is a single send to the model.
type Request struct {
	Model   string
	System  string
	History []Turn
	Tools   []Tool
}

// Reply is the model's answer to a Request.
type Reply struct {
	Candidates     []Candidate
	PromptFeedback *PromptFeedback
	Usage          Usage
}

// Candidate is one generated alternative.
type Candidate struct {
	Parts        []Part
	FinishReason string
}

// PromptFeedback carries a block decision made on the prompt or reply.
type PromptFeedback struct {
	BlockReason   string
	BlockMessage  string
	SafetyRatings []SafetyRating
}

// SafetyRating is a per-category safety verdict.
type SafetyRating struct {
	Category    string
	Probability string
	Blocked     bool
}

// Usage counts tokens for one model round.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ModelService sends a conversation to a generative model.
type ModelService interface {
	Send(ctx context.Context, req Request) (*Reply, error)
}
