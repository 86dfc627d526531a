package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"anchoredit/engine/internal/llm"
)

type scriptedModel struct {
	mu       sync.Mutex
	replies  []*llm.Reply
	errs     []error
	requests []llm.Request
	repeat   *llm.Reply
}

func (m *scriptedModel) Send(_ context.Context, req llm.Request) (*llm.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(m.replies) == 0 {
		if m.repeat != nil {
			return m.repeat, nil
		}
		return textReply("done"), nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func textReply(text string) *llm.Reply {
	return &llm.Reply{
		Candidates: []llm.Candidate{{Parts: []llm.Part{{Text: text}}, FinishReason: llm.FinishStop}},
		Usage:      llm.Usage{InputTokens: 10, OutputTokens: 2},
	}
}

func callReply(calls ...llm.ToolCall) *llm.Reply {
	parts := make([]llm.Part, 0, len(calls))
	for i := range calls {
		c := calls[i]
		parts = append(parts, llm.Part{ToolCall: &c})
	}
	return &llm.Reply{Candidates: []llm.Candidate{{Parts: parts, FinishReason: llm.FinishStop}}}
}

type stubTools struct {
	mu      sync.Mutex
	calls   []llm.ToolCall
	pending map[string]bool
}

func (s *stubTools) Execute(_ context.Context, call llm.ToolCall) llm.ToolResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	if s.pending[call.Name] {
		return llm.ToolResponse{ID: call.ID, Name: call.Name, Success: true, Status: llm.StatusPendingApproval}
	}
	return llm.ToolResponse{ID: call.ID, Name: call.Name, Success: true, Data: map[string]any{"ok": true}}
}

func (s *stubTools) Declarations() []llm.Tool {
	return []llm.Tool{{Name: "read"}, {Name: "propose"}}
}

func newTestSession(model llm.ModelService, tools Executor, opts ...func(*Config)) *Session {
	cfg := Config{DocumentID: "doc", ModelID: "test-model", Model: model, Tools: tools}
	for _, o := range opts {
		o(&cfg)
	}
	return New(cfg)
}

func TestSendPlainReply(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Reply{textReply("hello")}}
	s := newTestSession(model, &stubTools{})

	res, err := s.Send(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "hello", res.Reply)
	require.Equal(t, StateIdle, res.State)
	require.Equal(t, 1, res.Rounds)
	require.Equal(t, 10, res.Usage.InputTokens)

	turns := s.History().Turns()
	require.Len(t, turns, 2)
	require.Equal(t, llm.RoleUser, turns[0].Role)
	require.Equal(t, llm.RoleModel, turns[1].Role)
}

func TestToolRoundTripFeedsResponsesBack(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Reply{
		callReply(llm.ToolCall{ID: "c1", Name: "read"}, llm.ToolCall{ID: "c2", Name: "read"}),
		textReply("read twice"),
	}}
	tools := &stubTools{}
	var events []string
	s := New(Config{ModelID: "m", Model: model, Tools: tools}, WithNotifier(func(method string, _ any) {
		events = append(events, method)
	}))

	res, err := s.Send(context.Background(), "look")
	require.NoError(t, err)
	require.Equal(t, "read twice", res.Reply)
	require.Equal(t, 2, res.Rounds)
	require.Len(t, tools.calls, 2)
	require.Equal(t, []string{EventToolExecuting, EventToolComplete, EventToolExecuting, EventToolComplete}, events)

	second := model.requests[1].History
	last := second[len(second)-1]
	require.Equal(t, llm.RoleTool, last.Role)
	require.Len(t, last.Parts, 2)
	require.Equal(t, "c1", last.Parts[0].ToolResponse.ID)
	require.Equal(t, "c2", last.Parts[1].ToolResponse.ID)
	require.Len(t, model.requests[0].Tools, 2)
}

func TestPendingProposalPausesForHuman(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Reply{
		callReply(llm.ToolCall{ID: "p1", Name: "propose"}),
		textReply("applied"),
	}}
	s := newTestSession(model, &stubTools{pending: map[string]bool{"propose": true}})
	ctx := context.Background()

	res, err := s.Send(ctx, "edit")
	require.NoError(t, err)
	require.True(t, res.Pending)
	require.Equal(t, StateAwaitingHuman, s.State())
	require.Len(t, model.requests, 1)

	_, err = s.Send(ctx, "again")
	require.ErrorIs(t, err, ErrAwaitingApproval)

	res, err = s.Resume(ctx, llm.ToolResponse{ID: "p1", Name: "propose", Success: true, Data: map[string]any{"changed": true}})
	require.NoError(t, err)
	require.Equal(t, "applied", res.Reply)
	require.Equal(t, StateIdle, res.State)

	sent := model.requests[1].History
	last := sent[len(sent)-1]
	require.Equal(t, llm.RoleTool, last.Role)
	require.Len(t, last.Parts, 1)
	require.Equal(t, true, last.Parts[0].ToolResponse.Data["changed"])
	require.Empty(t, last.Parts[0].ToolResponse.Status)
}

func TestMixedBatchContinuesWithPendingResponse(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Reply{
		callReply(llm.ToolCall{ID: "r1", Name: "read"}, llm.ToolCall{ID: "p1", Name: "propose"}),
		textReply("waiting on you"),
	}}
	s := newTestSession(model, &stubTools{pending: map[string]bool{"propose": true}})

	res, err := s.Send(context.Background(), "edit")
	require.NoError(t, err)
	require.False(t, res.Pending)
	require.Equal(t, StateIdle, res.State)

	sent := model.requests[1].History
	last := sent[len(sent)-1]
	require.Len(t, last.Parts, 2)
	require.True(t, last.Parts[1].ToolResponse.Pending())

	// a decision arriving after the batch already went back is still accepted
	res, err = s.Resume(context.Background(), llm.ToolResponse{ID: "p1", Name: "propose", Error: "user rejected"})
	require.NoError(t, err)
	require.Equal(t, StateIdle, res.State)
	require.Len(t, model.requests, 3)

	sent = model.requests[2].History
	last = sent[len(sent)-1]
	require.Equal(t, llm.RoleUser, last.Role)
	require.Contains(t, last.Text(), DecisionPrefix+" p1 (propose)")
	require.Contains(t, last.Text(), `"error":"user rejected"`)
	for _, req := range model.requests {
		requireToolTurnsAnswerCalls(t, req.History)
	}
}

func TestPausedDecisionAnswersTheCall(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Reply{
		callReply(llm.ToolCall{ID: "p1", Name: "propose"}),
		textReply("applied"),
	}}
	s := newTestSession(model, &stubTools{pending: map[string]bool{"propose": true}})

	_, err := s.Send(context.Background(), "edit")
	require.NoError(t, err)
	_, err = s.Resume(context.Background(), llm.ToolResponse{ID: "p1", Name: "propose", Success: true})
	require.NoError(t, err)

	sent := model.requests[1].History
	require.Equal(t, llm.RoleTool, sent[len(sent)-1].Role)
	requireToolTurnsAnswerCalls(t, sent)
}

// requireToolTurnsAnswerCalls checks that every tool turn directly follows a
// model turn with one call per response.
func requireToolTurnsAnswerCalls(t *testing.T, history []llm.Turn) {
	t.Helper()
	for i, turn := range history {
		if turn.Role != llm.RoleTool {
			continue
		}
		require.Greater(t, i, 0, "tool turn at head of history")
		prev := history[i-1]
		require.Equal(t, llm.RoleModel, prev.Role, "tool turn %d does not follow a model turn", i)
		require.Len(t, prev.ToolCalls(), len(turn.Parts), "tool turn %d does not answer the preceding calls", i)
	}
}

func TestLoopCapStopsRunawayToolUse(t *testing.T) {
	model := &scriptedModel{repeat: callReply(llm.ToolCall{ID: "r", Name: "read"})}
	s := newTestSession(model, &stubTools{}, func(c *Config) { c.MaxRounds = 3 })

	res, err := s.Send(context.Background(), "go")
	require.ErrorIs(t, err, ErrLoopDetected)
	require.Equal(t, 3, res.Rounds)
	require.Equal(t, StateIdle, s.State())
	require.Len(t, model.requests, 3)

	_, err = s.Send(context.Background(), "again")
	require.NotErrorIs(t, err, ErrBusy)
}

func TestCommunicationErrorReturnsToIdle(t *testing.T) {
	model := &scriptedModel{errs: []error{llm.ErrRateLimited}}
	s := newTestSession(model, &stubTools{})

	_, err := s.Send(context.Background(), "hi")
	var comm *llm.CommunicationError
	require.True(t, errors.As(err, &comm))
	require.True(t, comm.Transient)
	require.Equal(t, StateIdle, s.State())

	res, err := s.Send(context.Background(), "retry")
	require.NoError(t, err)
	require.Equal(t, "done", res.Reply)
}

func TestBlockedReplyIsReported(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Reply{{
		PromptFeedback: &llm.PromptFeedback{BlockReason: "SAFETY"},
	}}}
	s := newTestSession(model, &stubTools{})

	_, err := s.Send(context.Background(), "hi")
	var blocked *llm.BlockedError
	require.True(t, errors.As(err, &blocked))
	require.Equal(t, "SAFETY", blocked.Reason)
	require.Equal(t, StateIdle, s.State())
	require.Len(t, s.History().Turns(), 1)
}

func TestSendViewAlwaysStartsWithUserTurn(t *testing.T) {
	model := &scriptedModel{repeat: textReply("ok")}
	history := NewHistory(3)
	s := newTestSession(model, &stubTools{}, func(c *Config) { c.History = history })
	for i := 0; i < 4; i++ {
		_, err := s.Send(context.Background(), "msg")
		require.NoError(t, err)
	}
	require.LessOrEqual(t, history.Len(), 3)
	for _, req := range model.requests {
		require.NotEmpty(t, req.History)
		require.Equal(t, llm.RoleUser, req.History[0].Role)
	}
}

func TestIllegalTransitionsAreRejected(t *testing.T) {
	require.True(t, canTransition(StateIdle, StateAwaitingModel))
	require.False(t, canTransition(StateIdle, StateExecutingTools))
	require.False(t, canTransition(StateAwaitingHuman, StateExecutingTools))
	require.True(t, canTransition(StateExecutingTools, StateAwaitingHuman))
	require.Equal(t, "AWAITING_HUMAN", StateAwaitingHuman.String())
}

func TestTrimToUserHead(t *testing.T) {
	turns := []llm.Turn{{Role: llm.RoleTool}, {Role: llm.RoleModel}, {Role: llm.RoleUser}, {Role: llm.RoleModel}}
	trimmed := TrimToUserHead(turns)
	require.Len(t, trimmed, 2)
	require.Equal(t, llm.RoleUser, trimmed[0].Role)
	require.Nil(t, TrimToUserHead([]llm.Turn{{Role: llm.RoleModel}}))
}
