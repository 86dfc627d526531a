// Package approval holds the single proposed edit awaiting a human decision
// and turns that decision into exactly one tool response.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"anchoredit/engine/internal/diff"
	"anchoredit/engine/internal/docstore"
	"anchoredit/engine/internal/errinfo"
	"anchoredit/engine/internal/llm"
	"anchoredit/engine/internal/logging"
	"anchoredit/engine/internal/metrics"
	"anchoredit/engine/internal/patch"
	"anchoredit/engine/internal/tools"
)

var (
	ErrNoPending       = errors.New("no proposal is awaiting a decision")
	ErrUnknownDecision = errors.New("unknown decision")
)

const (
	ErrorUserRejected        = "user rejected"
	ErrorRefinementRequested = "refinement requested"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionRefine  Decision = "refine"
)

// Pending is the proposal waiting on the human.
type Pending struct {
	ID        string         `json:"id"`
	CallID    string         `json:"call_id"`
	Proposal  patch.Proposal `json:"proposal"`
	Args      map[string]any `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
}

// Preview is what the human sees before deciding. It is computed from the
// document's current content on every call.
type Preview struct {
	Pending       Pending      `json:"pending"`
	DocumentName  string       `json:"document_name"`
	Diff          diff.Preview `json:"diff"`
	WholeDocument bool         `json:"whole_document,omitempty"`
	LocateError   string       `json:"locate_error,omitempty"`
}

type Gate struct {
	mu          sync.Mutex
	docs        docstore.Store
	pending     *Pending
	logger      *slog.Logger
	onRequested func(Pending)
	now         func() time.Time
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithOnRequested registers a hook called after a proposal is registered.
func WithOnRequested(fn func(Pending)) Option {
	return func(g *Gate) { g.onRequested = fn }
}

func New(docs docstore.Store, opts ...Option) *Gate {
	g := &Gate{docs: docs, logger: logging.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Propose registers p. It fails with tools.ErrProposalPending while another
// proposal is undecided.
func (g *Gate) Propose(_ context.Context, callID string, p patch.Proposal, args map[string]any) (map[string]any, error) {
	g.mu.Lock()
	if g.pending != nil {
		g.mu.Unlock()
		return nil, tools.ErrProposalPending
	}
	pending := Pending{
		ID:        uuid.NewString(),
		CallID:    callID,
		Proposal:  p,
		Args:      copyArgs(args),
		CreatedAt: g.now().UTC(),
	}
	g.pending = &pending
	hook := g.onRequested
	g.mu.Unlock()

	g.logger.Info("approval.requested", "proposal_id", pending.ID, "file_id", p.FileID, "lines", fmt.Sprintf("%d-%d", p.OriginalStartLine, p.OriginalEndLine))
	if hook != nil {
		hook(pending)
	}
	return map[string]any{
		"proposal_id":         pending.ID,
		"file_id":             p.FileID,
		"explanation":         p.Explanation,
		"original_start_line": p.OriginalStartLine,
		"original_end_line":   p.OriginalEndLine,
		"message":             "The proposed change is awaiting the user's decision. Wait for the result before proposing another change.",
	}, nil
}

// Pending returns the undecided proposal, if any.
func (g *Gate) Pending() (Pending, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return Pending{}, false
	}
	return *g.pending, true
}

// Preview diffs the located chunk against the proposed content.
func (g *Gate) Preview(ctx context.Context) (Preview, error) {
	pending, ok := g.Pending()
	if !ok {
		return Preview{}, ErrNoPending
	}
	doc, err := g.docs.Get(ctx, pending.Proposal.FileID)
	if err != nil {
		return Preview{}, err
	}
	p := pending.Proposal
	content := patch.NormalizeLineEndings(doc.Content)
	before := patch.NormalizeLineEndings(p.ContextBefore)
	after := patch.NormalizeLineEndings(p.ContextAfter)
	out := Preview{
		Pending:       pending,
		DocumentName:  doc.Name,
		WholeDocument: patch.WholeDocument(content, before, after),
	}
	loc, err := patch.Locate(content, before, after)
	if err != nil {
		out.LocateError = err.Error()
		return out, nil
	}
	out.Diff = diff.ChunkPreview(loc.Text, patch.NormalizeLineEndings(p.NewChunkContent), diff.LineAt(content, loc.CharStart))
	return out, nil
}

// Decide dispatches to Approve, Reject or Refine.
func (g *Gate) Decide(ctx context.Context, decision Decision, feedback string) (llm.ToolResponse, error) {
	switch decision {
	case DecisionApprove:
		return g.Approve(ctx)
	case DecisionReject:
		return g.Reject(feedback)
	case DecisionRefine:
		return g.Refine(feedback)
	default:
		return llm.ToolResponse{}, fmt.Errorf("%w: %q", ErrUnknownDecision, decision)
	}
}

// Approve applies the proposal through the store's read-modify-write entry
// point. Apply failures are reported in the response, not as an error.
func (g *Gate) Approve(ctx context.Context) (llm.ToolResponse, error) {
	pending, err := g.take()
	if err != nil {
		return llm.ToolResponse{}, err
	}
	resp := newResponse(pending)
	p := pending.Proposal

	var result patch.Result
	_, err = g.docs.Update(ctx, p.FileID, func(current string) (string, error) {
		if patch.WholeDocument(patch.NormalizeLineEndings(current), patch.NormalizeLineEndings(p.ContextBefore), patch.NormalizeLineEndings(p.ContextAfter)) {
			g.logger.Warn("approval.whole_document_replace", "proposal_id", pending.ID, "file_id", p.FileID)
		}
		res, err := patch.ApplyChunkUpdate(current, p)
		if err != nil {
			return "", err
		}
		result = res
		return res.NewContent, nil
	})
	if err != nil {
		resp.Error = err.Error()
		resp.Data["error_code"] = applyErrorCode(err)
		g.logger.Warn("approval.apply_failed", "proposal_id", pending.ID, "file_id", p.FileID, "error", err.Error())
		metrics.ApprovalDecisions.WithLabelValues(string(DecisionApprove), metrics.OutcomeError).Inc()
		return resp, nil
	}
	resp.Success = true
	resp.Data["changed"] = result.Changed
	resp.Data["message"] = result.Message
	g.logger.Info("approval.applied", "proposal_id", pending.ID, "file_id", p.FileID, "changed", result.Changed)
	metrics.ApprovalDecisions.WithLabelValues(string(DecisionApprove), metrics.OutcomeSuccess).Inc()
	return resp, nil
}

// Reject discards the proposal without touching the document.
func (g *Gate) Reject(feedback string) (llm.ToolResponse, error) {
	pending, err := g.take()
	if err != nil {
		return llm.ToolResponse{}, err
	}
	resp := newResponse(pending)
	resp.Error = ErrorUserRejected
	resp.Data["feedback"] = feedback
	g.logger.Info("approval.rejected", "proposal_id", pending.ID)
	metrics.ApprovalDecisions.WithLabelValues(string(DecisionReject), metrics.OutcomeSuccess).Inc()
	return resp, nil
}

// Refine discards the proposal and hands the original arguments back to the
// model along with the human's feedback.
func (g *Gate) Refine(feedback string) (llm.ToolResponse, error) {
	pending, err := g.take()
	if err != nil {
		return llm.ToolResponse{}, err
	}
	resp := newResponse(pending)
	resp.Error = ErrorRefinementRequested
	resp.Data["feedback"] = feedback
	resp.Data["original_args"] = pending.Args
	g.logger.Info("approval.refine_requested", "proposal_id", pending.ID)
	metrics.ApprovalDecisions.WithLabelValues(string(DecisionRefine), metrics.OutcomeSuccess).Inc()
	return resp, nil
}

func (g *Gate) take() (Pending, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return Pending{}, ErrNoPending
	}
	pending := *g.pending
	g.pending = nil
	return pending, nil
}

func newResponse(p Pending) llm.ToolResponse {
	return llm.ToolResponse{
		ID:   p.CallID,
		Name: tools.ToolApplyChunkUpdate,
		Data: map[string]any{"proposal_id": p.ID, "file_id": p.Proposal.FileID},
	}
}

func applyErrorCode(err error) string {
	var locErr *patch.LocationError
	var applyErr *patch.ApplicationError
	switch {
	case errors.As(err, &locErr):
		return errinfo.CodeLocationFailed
	case errors.As(err, &applyErr):
		return errinfo.CodePatchApplyFailed
	case errors.Is(err, docstore.ErrNotFound):
		return errinfo.CodeDocumentNotFound
	default:
		return errinfo.CodeFileWriteFailed
	}
}

func copyArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
