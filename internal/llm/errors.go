package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrUnauthorized  = errors.New("llm unauthorized")
	ErrUnavailable   = errors.New("llm unavailable")
	ErrEgressBlocked = errors.New("egress blocked")
	ErrRateLimited   = errors.New("llm rate limited")
	ErrEmptyReply    = errors.New("llm returned no candidates")
)

// CommunicationError wraps a failed model send. Transient errors are worth a
// manual retry; nothing retries automatically.
type CommunicationError struct {
	Transient bool
	Err       error
}

func (e *CommunicationError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("model communication failed (%s): %v", kind, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// BlockedError reports a reply withheld by the model's safety layer.
type BlockedError struct {
	Reason     string
	Message    string
	Categories []string
}

func (e *BlockedError) Error() string {
	msg := "response blocked: " + e.Reason
	if e.Message != "" {
		msg += " (" + e.Message + ")"
	}
	if len(e.Categories) > 0 {
		msg += " categories=" + strings.Join(e.Categories, ",")
	}
	return msg
}

var transientMarkers = []string{
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"resource_exhausted",
	"resource exhausted",
	"unavailable",
	"timeout",
	"timed out",
	"deadline exceeded",
	"overloaded",
	"connection reset",
	"connection refused",
	"broken pipe",
	"eof",
	"temporarily",
}

// Classify wraps err as a CommunicationError. Blocked and already classified
// errors pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var comm *CommunicationError
	if errors.As(err, &comm) {
		return err
	}
	var blocked *BlockedError
	if errors.As(err, &blocked) {
		return err
	}
	return &CommunicationError{Transient: IsTransient(err), Err: err}
}

// IsTransient applies the transient heuristic to err.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrEgressBlocked), errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	text := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// CheckBlocked returns a BlockedError when the reply carries a block reason
// or a candidate finished for safety reasons.
func CheckBlocked(reply *Reply) error {
	if reply == nil {
		return nil
	}
	if fb := reply.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return &BlockedError{Reason: fb.BlockReason, Message: fb.BlockMessage, Categories: blockedCategories(fb.SafetyRatings)}
	}
	for _, c := range reply.Candidates {
		if c.FinishReason == FinishSafety || c.FinishReason == FinishProhibited {
			return &BlockedError{Reason: c.FinishReason}
		}
	}
	return nil
}

const (
	FinishStop       = "STOP"
	FinishSafety     = "SAFETY"
	FinishProhibited = "PROHIBITED_CONTENT"
)

func blockedCategories(ratings []SafetyRating) []string {
	var out []string
	for _, r := range ratings {
		if r.Blocked {
			out = append(out, r.Category)
		}
	}
	return out
}
