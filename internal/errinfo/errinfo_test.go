package errinfo

import "testing"

func TestProviderNotConfigured(t *testing.T) {
	err := ProviderNotConfigured(PhaseSettings)
	if err.ErrorCode != CodeProviderNotConfigured {
		t.Fatalf("expected provider not configured")
	}
	if len(err.Actions) == 0 || err.Actions[0] != ActionOpenSettings {
		t.Fatalf("expected open_settings action")
	}
}

func TestApplyFailuresAreScopedToApproval(t *testing.T) {
	loc := LocationFailed("context_before not found")
	if loc.Phase != PhaseApproval || loc.Subphase != SubphaseApply || loc.Retryable {
		t.Fatalf("unexpected location failure shape: %+v", loc)
	}
	apply := PatchApplyFailed("hunk 0")
	if apply.ErrorCode != CodePatchApplyFailed {
		t.Fatalf("expected patch apply failed")
	}
}

func TestValidationHelpers(t *testing.T) {
	auth := ProviderAuthFailed(PhaseSettings)
	if auth.ErrorCode != CodeProviderAuthFailed {
		t.Fatalf("expected provider auth failed")
	}
	validation := ValidationFailed(PhaseConversation, "bad")
	if validation.ErrorCode != CodeValidationFailed {
		t.Fatalf("expected validation failed")
	}
	if validation.Error() != "VALIDATION_FAILED: bad" {
		t.Fatalf("unexpected error text %q", validation.Error())
	}
	busy := SessionBusy("in flight")
	if !busy.Retryable {
		t.Fatalf("expected busy to be retryable")
	}
	missing := DocumentNotFound(PhaseDocument, "doc-1")
	if missing.DocumentID != "doc-1" {
		t.Fatalf("expected document id")
	}
}
