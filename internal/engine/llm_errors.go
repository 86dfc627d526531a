package engine

import (
	"context"
	"errors"
	"net"

	"anchoredit/engine/internal/errinfo"
	"anchoredit/engine/internal/llm"
	"anchoredit/engine/internal/session"
)

func mapLLMError(phase, modelID string, err error) *errinfo.ErrorInfo {
	info := classifyLLMError(phase, err)
	info.ModelID = modelID
	var comm *llm.CommunicationError
	if errors.As(err, &comm) {
		info.Retryable = comm.Transient
	}
	return info
}

func classifyLLMError(phase string, err error) *errinfo.ErrorInfo {
	var blocked *llm.BlockedError
	if errors.As(err, &blocked) {
		return errinfo.ResponseBlocked(blocked.Error())
	}
	if errors.Is(err, llm.ErrUnauthorized) {
		return errinfo.ProviderAuthFailed(phase)
	}
	if errors.Is(err, llm.ErrEgressBlocked) {
		return errinfo.EgressBlocked(phase, "model endpoint not allowed")
	}
	if errors.Is(err, llm.ErrUnavailable) || errors.Is(err, llm.ErrRateLimited) || errors.Is(err, llm.ErrEmptyReply) {
		return errinfo.ProviderUnavailable(phase, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return errinfo.UserCanceled(phase, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errinfo.NetworkUnavailable(phase, err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errinfo.NetworkUnavailable(phase, err.Error())
	}
	return errinfo.ProviderUnavailable(phase, err.Error())
}

// mapSessionError converts a turn failure into the RPC error shape.
func mapSessionError(documentID, modelID string, err error) *errinfo.ErrorInfo {
	var info *errinfo.ErrorInfo
	switch {
	case errors.Is(err, session.ErrBusy):
		info = errinfo.SessionBusy(err.Error())
	case errors.Is(err, session.ErrAwaitingApproval):
		info = errinfo.AwaitingApproval(err.Error())
	case errors.Is(err, session.ErrLoopDetected):
		info = errinfo.AgentLoopDetected(errinfo.PhaseConversation, err.Error())
	case errors.Is(err, session.ErrIllegalTransition):
		info = errinfo.SessionBusy(err.Error())
	default:
		info = mapLLMError(errinfo.PhaseConversation, modelID, err)
		info.Subphase = errinfo.SubphaseModel
	}
	info.ModelID = modelID
	info.DocumentID = documentID
	return info
}
