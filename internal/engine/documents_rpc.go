package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"anchoredit/engine/internal/docstore"
	"anchoredit/engine/internal/errinfo"
	"anchoredit/engine/internal/patch"
)

type documentSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Language  string `json:"language"`
	Lines     int    `json:"lines"`
	UpdatedAt string `json:"updated_at"`
}

func summarize(doc docstore.Document) documentSummary {
	return documentSummary{
		ID:        doc.ID,
		Name:      doc.Name,
		Language:  doc.Language,
		Lines:     len(docstore.Lines(doc.Content)),
		UpdatedAt: doc.UpdatedAt.Format(time.RFC3339),
	}
}

func (e *Engine) DocumentsList(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	docs, err := e.docs.List(ctx)
	if err != nil {
		return nil, errinfo.FileReadFailed(errinfo.PhaseDocument, err.Error())
	}
	out := make([]documentSummary, 0, len(docs))
	for _, doc := range docs {
		out = append(out, summarize(doc))
	}
	return map[string]any{"documents": out}, nil
}

func (e *Engine) DocumentGet(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseDocument, "invalid params")
	}
	doc, err := e.docs.Get(ctx, req.DocumentID)
	if err != nil {
		return nil, documentError(req.DocumentID, err)
	}
	return map[string]any{"document": doc}, nil
}

func (e *Engine) DocumentCreate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseDocument, "invalid params")
	}
	doc, err := e.docs.Create(ctx, req.Name, req.Content)
	if err != nil {
		return nil, documentError("", err)
	}
	e.logger.Info("document.created", "document_id", doc.ID, "name", doc.Name)
	return map[string]any{"document": summarize(doc)}, nil
}

// DocumentSetContent replaces the document's content as a direct user edit.
func (e *Engine) DocumentSetContent(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		DocumentID string `json:"document_id"`
		Content    string `json:"content"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseDocument, "invalid params")
	}
	doc, err := e.docs.Update(ctx, req.DocumentID, func(string) (string, error) {
		return req.Content, nil
	})
	if err != nil {
		return nil, documentError(req.DocumentID, err)
	}
	e.logger.Info("document.content_set", "document_id", doc.ID, "bytes", len(req.Content))
	return map[string]any{"document": summarize(doc)}, nil
}

// DocumentApplyContent moves the document to the given content through the
// diff/patch path rather than a blind overwrite.
func (e *Engine) DocumentApplyContent(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		DocumentID string `json:"document_id"`
		Content    string `json:"content"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseDocument, "invalid params")
	}
	var result patch.Result
	doc, err := e.docs.Update(ctx, req.DocumentID, func(current string) (string, error) {
		res, err := patch.ApplyFullContentDiff(current, req.Content)
		if err != nil {
			return "", err
		}
		result = res
		return res.NewContent, nil
	})
	if err != nil {
		return nil, documentError(req.DocumentID, err)
	}
	e.logger.Info("document.content_applied", "document_id", doc.ID, "changed", result.Changed)
	return map[string]any{
		"document": summarize(doc),
		"changed":  result.Changed,
		"message":  result.Message,
	}, nil
}

func documentError(documentID string, err error) *errinfo.ErrorInfo {
	var locErr *patch.LocationError
	var applyErr *patch.ApplicationError
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return errinfo.DocumentNotFound(errinfo.PhaseDocument, documentID)
	case errors.Is(err, docstore.ErrDuplicateName), errors.Is(err, docstore.ErrInvalidName):
		return errinfo.ValidationFailed(errinfo.PhaseDocument, err.Error())
	case errors.As(err, &locErr):
		info := errinfo.LocationFailed(err.Error())
		info.Phase = errinfo.PhaseDocument
		info.DocumentID = documentID
		return info
	case errors.As(err, &applyErr):
		info := errinfo.PatchApplyFailed(err.Error())
		info.Phase = errinfo.PhaseDocument
		info.DocumentID = documentID
		return info
	default:
		info := errinfo.FileWriteFailed(errinfo.PhaseDocument, err.Error())
		info.DocumentID = documentID
		return info
	}
}
