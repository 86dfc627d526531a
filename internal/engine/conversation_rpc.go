package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"anchoredit/engine/internal/approval"
	"anchoredit/engine/internal/docstore"
	"anchoredit/engine/internal/errinfo"
	"anchoredit/engine/internal/llm"
	"anchoredit/engine/internal/session"
	"anchoredit/engine/internal/settings"
)

// workspace returns the persisted active document and model.
func (e *Engine) workspace() (string, string, *errinfo.ErrorInfo) {
	current, err := e.settings.Load()
	if err != nil {
		return "", "", errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
	}
	modelID := current.ActiveModelID
	// ANCHOREDIT_MODEL applies until the user picks a model.
	if e.cfg.Model != "" && len(current.RecentModels) == 0 {
		modelID = e.cfg.Model
	}
	return current.ActiveDocumentID, modelID, nil
}

// bind returns the session for (documentID, modelID), replacing the active
// one when either differs. The replacement starts from the shared history.
func (e *Engine) bind(ctx context.Context, documentID, modelID string) (*session.Session, *errinfo.ErrorInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur := e.active; cur != nil {
		if cur.DocumentID() == documentID && cur.ModelID() == modelID {
			return cur, nil
		}
		switch cur.State() {
		case session.StateAwaitingModel, session.StateExecutingTools:
			return nil, mapSessionError(cur.DocumentID(), cur.ModelID(), session.ErrBusy)
		}
		if _, pending := e.gate.Pending(); pending {
			return nil, mapSessionError(cur.DocumentID(), cur.ModelID(), session.ErrAwaitingApproval)
		}
	}
	doc, err := e.docs.Get(ctx, documentID)
	if err != nil {
		return nil, documentError(documentID, err)
	}
	model, err := e.modelService(ctx)
	if err != nil {
		info := mapLLMError(errinfo.PhaseSettings, modelID, err)
		if errors.Is(err, llm.ErrUnauthorized) {
			info = errinfo.ProviderNotConfigured(errinfo.PhaseSettings)
			info.ModelID = modelID
		}
		return nil, info
	}
	sess := session.New(session.Config{
		DocumentID:   doc.ID,
		ModelID:      modelID,
		System:       systemPrompt(doc),
		Model:        model,
		Tools:        e.router,
		History:      e.history,
		MaxRounds:    e.cfg.MaxRounds,
		ModelTimeout: e.cfg.ModelTimeout,
	},
		session.WithLogger(e.logger.With("component", "session", "document_id", doc.ID, "model_id", modelID)),
		session.WithNotifier(session.Notifier(e.emit)),
	)
	if e.active != nil {
		e.logger.Info("session.rebound", "previous_session_id", e.active.ID(), "session_id", sess.ID())
	}
	e.active = sess
	return sess, nil
}

func (e *Engine) current() *session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) WorkspaceSetActiveDocument(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "invalid params")
	}
	if _, err := e.docs.Get(ctx, req.DocumentID); err != nil {
		return nil, documentError(req.DocumentID, err)
	}
	if errInfo := e.checkRebind(req.DocumentID, ""); errInfo != nil {
		return nil, errInfo
	}
	updated, err := e.settings.Update(func(s *settings.Settings) {
		s.ActiveDocumentID = req.DocumentID
	})
	if err != nil {
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSettings, err.Error())
	}
	e.logger.Info("workspace.active_document", "document_id", req.DocumentID)
	return map[string]any{"active_document_id": updated.ActiveDocumentID, "active_model_id": updated.ActiveModelID}, nil
}

func (e *Engine) WorkspaceSetActiveModel(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ModelID string `json:"model_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "invalid params")
	}
	req.ModelID = strings.TrimSpace(req.ModelID)
	if req.ModelID == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "model_id is required")
	}
	if errInfo := e.checkRebind("", req.ModelID); errInfo != nil {
		return nil, errInfo
	}
	updated, err := e.settings.Update(func(s *settings.Settings) {
		s.RememberModel(req.ModelID)
	})
	if err != nil {
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSettings, err.Error())
	}
	e.logger.Info("workspace.active_model", "model_id", req.ModelID)
	return map[string]any{
		"active_document_id": updated.ActiveDocumentID,
		"active_model_id":    updated.ActiveModelID,
		"recent_models":      updated.RecentModels,
	}, nil
}

// checkRebind refuses a switch that would strand a running turn or an
// undecided proposal. Empty arguments keep the current value.
func (e *Engine) checkRebind(documentID, modelID string) *errinfo.ErrorInfo {
	cur := e.current()
	if cur == nil {
		return nil
	}
	if documentID == "" {
		documentID = cur.DocumentID()
	}
	if modelID == "" {
		modelID = cur.ModelID()
	}
	if cur.DocumentID() == documentID && cur.ModelID() == modelID {
		return nil
	}
	switch cur.State() {
	case session.StateAwaitingModel, session.StateExecutingTools:
		return mapSessionError(cur.DocumentID(), cur.ModelID(), session.ErrBusy)
	}
	if _, pending := e.gate.Pending(); pending {
		return mapSessionError(cur.DocumentID(), cur.ModelID(), session.ErrAwaitingApproval)
	}
	return nil
}

func (e *Engine) ConversationSend(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseConversation, "invalid params")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseConversation, "empty message")
	}
	if !e.turnMu.TryLock() {
		return nil, errinfo.SessionBusy("a turn is already in progress")
	}
	defer e.turnMu.Unlock()

	documentID, modelID, errInfo := e.workspace()
	if errInfo != nil {
		return nil, errInfo
	}
	if documentID == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseConversation, "no active document")
	}
	sess, errInfo := e.bind(ctx, documentID, modelID)
	if errInfo != nil {
		return nil, errInfo
	}
	e.logger.Debug("conversation.send", "session_id", sess.ID(), "chars", len(req.Text))
	res, err := sess.Send(ctx, req.Text)
	return e.finishTurn(ctx, sess, res, err)
}

// finishTurn reports the turn. pending_approval follows the gate rather than
// the session, since a proposal from a mixed batch stays pending while the
// session goes idle.
func (e *Engine) finishTurn(ctx context.Context, sess *session.Session, res session.Result, err error) (any, *errinfo.ErrorInfo) {
	_, pending := e.gate.Pending()
	payload := map[string]any{
		"session_id":       res.SessionID,
		"state":            res.State,
		"reply":            res.Reply,
		"pending_approval": pending,
		"rounds":           res.Rounds,
		"usage": map[string]any{
			"input_tokens":  res.Usage.InputTokens,
			"output_tokens": res.Usage.OutputTokens,
		},
	}
	if err != nil {
		errInfo := mapSessionError(sess.DocumentID(), sess.ModelID(), err)
		payload["error"] = errInfo
		e.emit(NotifyTurnComplete, payload)
		e.logger.Warn("conversation.turn_failed", "session_id", sess.ID(), "error_code", errInfo.ErrorCode, "detail", errInfo.Detail)
		return nil, errInfo
	}
	if pending {
		if preview, err := e.gate.Preview(ctx); err == nil {
			payload["proposal"] = preview
		}
	}
	e.emit(NotifyTurnComplete, payload)
	return payload, nil
}

func (e *Engine) ConversationGetState(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	documentID, modelID, errInfo := e.workspace()
	if errInfo != nil {
		return nil, errInfo
	}
	_, pending := e.gate.Pending()
	out := map[string]any{
		"state":              session.StateIdle,
		"active_document_id": documentID,
		"active_model_id":    modelID,
		"pending_approval":   pending,
		"history_turns":      e.history.Len(),
	}
	if sess := e.current(); sess != nil {
		out["state"] = sess.State()
		out["session_id"] = sess.ID()
		out["session_document_id"] = sess.DocumentID()
		out["session_model_id"] = sess.ModelID()
	}
	return out, nil
}

func (e *Engine) ConversationGetHistory(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	return map[string]any{"turns": e.history.Turns()}, nil
}

func (e *Engine) ApprovalGetPending(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	preview, err := e.gate.Preview(ctx)
	if errors.Is(err, approval.ErrNoPending) {
		return map[string]any{"pending": nil}, nil
	}
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, errinfo.DocumentNotFound(errinfo.PhaseApproval, "")
		}
		return nil, errinfo.FileReadFailed(errinfo.PhaseApproval, err.Error())
	}
	return map[string]any{"pending": preview}, nil
}

// ApprovalDecide resolves the pending proposal and feeds the outcome back to
// the model as the proposal's tool response.
func (e *Engine) ApprovalDecide(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		Decision string `json:"decision"`
		Feedback string `json:"feedback"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseApproval, "invalid params")
	}
	if !e.turnMu.TryLock() {
		return nil, errinfo.SessionBusy("a turn is in progress")
	}
	defer e.turnMu.Unlock()

	sess := e.current()
	if sess != nil {
		switch sess.State() {
		case session.StateAwaitingModel, session.StateExecutingTools:
			return nil, mapSessionError(sess.DocumentID(), sess.ModelID(), session.ErrBusy)
		}
	}
	resp, err := e.gate.Decide(ctx, approval.Decision(strings.ToLower(strings.TrimSpace(req.Decision))), req.Feedback)
	if err != nil {
		switch {
		case errors.Is(err, approval.ErrNoPending):
			return nil, errinfo.ApprovalNotPending(err.Error())
		case errors.Is(err, approval.ErrUnknownDecision):
			return nil, errinfo.ValidationFailed(errinfo.PhaseApproval, err.Error())
		default:
			return nil, errinfo.FileWriteFailed(errinfo.PhaseApproval, err.Error())
		}
	}
	e.logger.Info("approval.decided", "decision", req.Decision, "call_id", resp.ID, "success", resp.Success)
	if sess == nil {
		return map[string]any{"tool_response": resp}, nil
	}
	res, err := sess.Resume(ctx, resp)
	out, errInfo := e.finishTurn(ctx, sess, res, err)
	if errInfo != nil {
		// The decision itself took effect; report both.
		return map[string]any{"tool_response": resp, "error": errInfo}, nil
	}
	payload := out.(map[string]any)
	payload["tool_response"] = resp
	return payload, nil
}
