// Package session drives one conversation with a model for a single
// (document, model) pair.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"anchoredit/engine/internal/llm"
	"anchoredit/engine/internal/logging"
	"anchoredit/engine/internal/metrics"
)

// DefaultMaxRounds caps model sends per user turn.
const DefaultMaxRounds = 50

// Executor runs tool calls. Execute never fails; errors travel in the response.
type Executor interface {
	Execute(ctx context.Context, call llm.ToolCall) llm.ToolResponse
	Declarations() []llm.Tool
}

// Notifier receives progress events.
type Notifier func(method string, params any)

const (
	EventToolExecuting = "ConversationToolExecuting"
	EventToolComplete  = "ConversationToolComplete"
)

type Config struct {
	DocumentID string
	ModelID    string
	System     string
	Model      llm.ModelService
	Tools      Executor
	History    *History
	MaxRounds  int
	// ModelTimeout bounds each model send. Zero leaves sends unbounded.
	ModelTimeout time.Duration
}

// Result describes how a turn ended.
type Result struct {
	SessionID string    `json:"session_id"`
	State     State     `json:"state"`
	Reply     string    `json:"reply,omitempty"`
	Pending   bool      `json:"pending_approval"`
	Rounds    int       `json:"rounds"`
	Usage     llm.Usage `json:"usage"`
}

type Session struct {
	mu     sync.Mutex
	state  State
	id     string
	cfg    Config
	logger *slog.Logger
	notify Notifier
}

type Option func(*Session)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notify = n }
}

func New(cfg Config, opts ...Option) *Session {
	if cfg.History == nil {
		cfg.History = NewHistory(DefaultHistoryLimit)
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	s := &Session{state: StateIdle, id: uuid.NewString(), cfg: cfg, logger: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session_id", s.id)
	return s
}

func (s *Session) ID() string         { return s.id }
func (s *Session) DocumentID() string { return s.cfg.DocumentID }
func (s *Session) ModelID() string    { return s.cfg.ModelID }
func (s *Session) History() *History  { return s.cfg.History }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Send starts a user turn. Only an idle session accepts one.
func (s *Session) Send(ctx context.Context, text string) (Result, error) {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
	case StateAwaitingHuman:
		s.mu.Unlock()
		return s.result(), ErrAwaitingApproval
	default:
		s.mu.Unlock()
		return s.result(), ErrBusy
	}
	if err := s.transitionLocked(StateAwaitingModel); err != nil {
		s.mu.Unlock()
		return s.result(), err
	}
	s.mu.Unlock()

	s.cfg.History.Append(llm.Turn{ID: uuid.NewString(), Role: llm.RoleUser, Parts: []llm.Part{{Text: text}}})
	s.logger.Info("session.user_message", "chars", len(text))
	return s.run(ctx)
}

// Resume injects a human decision. While paused on approval it answers the
// pending call as a one-response tool batch. When idle, the proposal was part
// of a batch that already went back to the model, so the decision is sent as
// a user turn.
func (s *Session) Resume(ctx context.Context, resp llm.ToolResponse) (Result, error) {
	s.mu.Lock()
	if s.state != StateAwaitingHuman && s.state != StateIdle {
		s.mu.Unlock()
		return s.result(), ErrBusy
	}
	answered := s.state == StateIdle
	if err := s.transitionLocked(StateAwaitingModel); err != nil {
		s.mu.Unlock()
		return s.result(), err
	}
	s.mu.Unlock()

	// A call already answered as pending cannot take a second tool response;
	// the decision goes back as user text instead.
	if answered {
		s.cfg.History.Append(decisionTurn(resp))
	} else {
		s.cfg.History.Append(toolTurn([]llm.ToolResponse{resp}))
	}
	s.logger.Info("session.resume", "call_id", resp.ID, "success", resp.Success, "as_user_turn", answered)
	return s.run(ctx)
}

func (s *Session) run(ctx context.Context) (Result, error) {
	var usage llm.Usage
	for round := 1; ; round++ {
		if round > s.cfg.MaxRounds {
			s.logger.Warn("session.loop_detected", "rounds", s.cfg.MaxRounds)
			s.finish(StateIdle)
			res := s.result()
			res.Rounds = round - 1
			res.Usage = usage
			return res, fmt.Errorf("%w: stopped after %d model rounds", ErrLoopDetected, s.cfg.MaxRounds)
		}

		reply, err := s.sendModel(ctx, round)
		if err != nil {
			s.finish(StateIdle)
			res := s.result()
			res.Rounds = round
			res.Usage = usage
			return res, err
		}
		usage.InputTokens += reply.Usage.InputTokens
		usage.OutputTokens += reply.Usage.OutputTokens

		modelTurn := llm.Turn{
			ID:           uuid.NewString(),
			Role:         llm.RoleModel,
			Parts:        reply.Candidates[0].Parts,
			InputTokens:  reply.Usage.InputTokens,
			OutputTokens: reply.Usage.OutputTokens,
		}
		s.cfg.History.Append(modelTurn)
		calls := modelTurn.ToolCalls()
		if len(calls) == 0 {
			s.finish(StateIdle)
			res := s.result()
			res.Reply = strings.TrimSpace(modelTurn.Text())
			res.Rounds = round
			res.Usage = usage
			s.logger.Info("session.turn_complete", "rounds", round, "input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)
			return res, nil
		}

		if err := s.transition(StateExecutingTools); err != nil {
			return s.result(), err
		}
		responses := s.executeBatch(ctx, calls)

		if allPending(responses) {
			s.finish(StateAwaitingHuman)
			res := s.result()
			res.Pending = true
			res.Reply = strings.TrimSpace(modelTurn.Text())
			res.Rounds = round
			res.Usage = usage
			s.logger.Info("session.awaiting_human", "call_id", responses[0].ID)
			return res, nil
		}
		s.cfg.History.Append(toolTurn(responses))
		if err := s.transition(StateAwaitingModel); err != nil {
			return s.result(), err
		}
	}
}

func (s *Session) sendModel(ctx context.Context, round int) (*llm.Reply, error) {
	if s.cfg.Model == nil {
		return nil, llm.Classify(llm.ErrUnauthorized)
	}
	callCtx := ctx
	if s.cfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.ModelTimeout)
		defer cancel()
	}
	req := llm.Request{
		Model:   s.cfg.ModelID,
		System:  s.cfg.System,
		History: s.cfg.History.SendView(),
	}
	if s.cfg.Tools != nil {
		req.Tools = s.cfg.Tools.Declarations()
	}
	s.logger.Info("session.model_request", "round", round, "turns", len(req.History), "model", s.cfg.ModelID)
	started := time.Now()
	reply, err := s.cfg.Model.Send(callCtx, req)
	if err == nil {
		err = llm.CheckBlocked(reply)
	}
	if err == nil && (reply == nil || len(reply.Candidates) == 0) {
		err = llm.ErrEmptyReply
	}
	var in, out int
	if reply != nil {
		in, out = reply.Usage.InputTokens, reply.Usage.OutputTokens
	}
	metrics.ObserveModelRound(s.cfg.ModelID, started, err, in, out)
	if err != nil {
		err = llm.Classify(err)
		s.logger.Warn("session.model_error", "round", round, "error", err.Error())
		return nil, err
	}
	s.logger.Info("session.model_response", "round", round, "elapsed_ms", time.Since(started).Milliseconds(),
		"part_count", len(reply.Candidates[0].Parts), "finish_reason", reply.Candidates[0].FinishReason)
	return reply, nil
}

// executeBatch runs calls in order and collects every response before any is
// sent back.
func (s *Session) executeBatch(ctx context.Context, calls []llm.ToolCall) []llm.ToolResponse {
	responses := make([]llm.ToolResponse, 0, len(calls))
	for _, call := range calls {
		s.emit(EventToolExecuting, map[string]any{
			"session_id": s.id,
			"call_id":    call.ID,
			"tool":       call.Name,
		})
		var resp llm.ToolResponse
		if s.cfg.Tools == nil {
			resp = llm.ToolResponse{ID: call.ID, Name: call.Name, Error: "no tools available"}
		} else {
			resp = s.cfg.Tools.Execute(ctx, call)
		}
		resp.ID = call.ID
		resp.Name = call.Name
		responses = append(responses, resp)
		s.emit(EventToolComplete, map[string]any{
			"session_id": s.id,
			"call_id":    call.ID,
			"tool":       call.Name,
			"success":    resp.Success,
			"status":     resp.Status,
			"error":      resp.Error,
		})
	}
	return responses
}

func allPending(responses []llm.ToolResponse) bool {
	if len(responses) == 0 {
		return false
	}
	for _, r := range responses {
		if !r.Pending() {
			return false
		}
	}
	return true
}

func toolTurn(responses []llm.ToolResponse) llm.Turn {
	parts := make([]llm.Part, 0, len(responses))
	for i := range responses {
		resp := responses[i]
		parts = append(parts, llm.Part{ToolResponse: &resp})
	}
	return llm.Turn{ID: uuid.NewString(), Role: llm.RoleTool, Parts: parts}
}

// DecisionPrefix opens the user turn carrying a decision on an earlier call.
const DecisionPrefix = "Decision on pending tool call"

func decisionTurn(resp llm.ToolResponse) llm.Turn {
	payload, err := json.Marshal(resp.Payload())
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"success":%t,"error":%q}`, resp.Success, resp.Error))
	}
	text := fmt.Sprintf("%s %s (%s): %s", DecisionPrefix, resp.ID, resp.Name, payload)
	return llm.Turn{ID: uuid.NewString(), Role: llm.RoleUser, Parts: []llm.Part{{Text: text}}}
}

func (s *Session) emit(method string, params any) {
	if s.notify != nil {
		s.notify(method, params)
	}
}

// finish moves to a resting state and evicts old turns.
func (s *Session) finish(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(to); err != nil {
		s.logger.Error("session.transition_failed", "from", s.state.String(), "to", to.String())
		s.state = to
	}
	s.cfg.History.Evict()
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to)
}

func (s *Session) transitionLocked(to State) error {
	if !canTransition(s.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.state, to)
	}
	s.logger.Debug("session.state", "from", s.state.String(), "to", to.String())
	s.state = to
	return nil
}

func (s *Session) result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Result{SessionID: s.id, State: s.state}
}
