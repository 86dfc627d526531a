package errinfo

// ErrorInfo is the structured error shape returned across the RPC boundary.
type ErrorInfo struct {
	ErrorCode  string   `json:"error_code"`
	Phase      string   `json:"phase,omitempty"`
	Subphase   string   `json:"subphase,omitempty"`
	Retryable  bool     `json:"retryable"`
	Actions    []string `json:"actions,omitempty"`
	ModelID    string   `json:"model_id,omitempty"`
	DocumentID string   `json:"document_id,omitempty"`
	Detail     string   `json:"detail,omitempty"`
}

func (e *ErrorInfo) Error() string {
	if e.Detail == "" {
		return e.ErrorCode
	}
	return e.ErrorCode + ": " + e.Detail
}

const (
	CodeEgressBlocked         = "EGRESS_BLOCKED_BY_POLICY"
	CodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	CodeProviderAuthFailed    = "PROVIDER_AUTH_FAILED"
	CodeProviderUnavailable   = "PROVIDER_UNAVAILABLE"
	CodeNetworkUnavailable    = "NETWORK_UNAVAILABLE"
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeDocumentNotFound      = "DOCUMENT_NOT_FOUND"
	CodeFileReadFailed        = "FILE_READ_FAILED"
	CodeFileWriteFailed       = "FILE_WRITE_FAILED"
	CodeUserCanceled          = "USER_CANCELED"
	CodeAgentLoopDetected     = "AGENT_LOOP_DETECTED"
	CodeLocationFailed        = "LOCATION_FAILED"
	CodePatchApplyFailed      = "PATCH_APPLY_FAILED"
	CodeResponseBlocked       = "RESPONSE_BLOCKED"
	CodeSessionBusy           = "SESSION_BUSY"
	CodeAwaitingApproval      = "AWAITING_APPROVAL"
	CodeApprovalNotPending    = "APPROVAL_NOT_PENDING"
)

const (
	ActionRetry          = "retry"
	ActionOpenSettings   = "open_settings"
	ActionReviewProposal = "review_proposal"
	ActionRephrase       = "rephrase"
)

const (
	PhaseDocument     = "document"
	PhaseConversation = "conversation"
	PhaseApproval     = "approval"
	PhaseSettings     = "settings"
)

const (
	SubphaseModel = "model"
	SubphaseTools = "tools"
	SubphaseApply = "apply"
)

func ProviderNotConfigured(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderNotConfigured,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionOpenSettings},
	}
}

func ProviderAuthFailed(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderAuthFailed,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionOpenSettings},
	}
}

func ValidationFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeValidationFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func DocumentNotFound(phase, documentID string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode:  CodeDocumentNotFound,
		Phase:      phase,
		Retryable:  false,
		DocumentID: documentID,
		Detail:     "document not found: " + documentID,
	}
}

func FileReadFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeFileReadFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func FileWriteFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeFileWriteFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func EgressBlocked(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeEgressBlocked,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func AgentLoopDetected(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeAgentLoopDetected,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func ProviderUnavailable(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderUnavailable,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func UserCanceled(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeUserCanceled,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func NetworkUnavailable(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeNetworkUnavailable,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func LocationFailed(detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeLocationFailed,
		Phase:     PhaseApproval,
		Subphase:  SubphaseApply,
		Retryable: false,
		Actions:   []string{ActionRephrase},
		Detail:    detail,
	}
}

func PatchApplyFailed(detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodePatchApplyFailed,
		Phase:     PhaseApproval,
		Subphase:  SubphaseApply,
		Retryable: false,
		Actions:   []string{ActionRephrase},
		Detail:    detail,
	}
}

func ResponseBlocked(detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeResponseBlocked,
		Phase:     PhaseConversation,
		Subphase:  SubphaseModel,
		Retryable: false,
		Actions:   []string{ActionRephrase},
		Detail:    detail,
	}
}

func SessionBusy(detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeSessionBusy,
		Phase:     PhaseConversation,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func AwaitingApproval(detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeAwaitingApproval,
		Phase:     PhaseConversation,
		Retryable: false,
		Actions:   []string{ActionReviewProposal},
		Detail:    detail,
	}
}

func ApprovalNotPending(detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeApprovalNotPending,
		Phase:     PhaseApproval,
		Retryable: false,
		Detail:    detail,
	}
}
