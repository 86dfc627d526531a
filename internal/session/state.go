package session

import (
	"errors"
	"fmt"
)

// State is the session's position in the send/tool/approval cycle.
type State int

const (
	StateIdle State = iota
	StateAwaitingModel
	StateExecutingTools
	StateAwaitingHuman
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAwaitingModel:
		return "AWAITING_MODEL"
	case StateExecutingTools:
		return "EXECUTING_TOOLS"
	case StateAwaitingHuman:
		return "AWAITING_HUMAN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	ErrIllegalTransition = errors.New("illegal session state transition")
	ErrBusy              = errors.New("session is busy")
	ErrAwaitingApproval  = errors.New("session is waiting for an approval decision")
	ErrLoopDetected      = errors.New("agent loop detected")
)

var transitions = map[State][]State{
	StateIdle:           {StateAwaitingModel},
	StateAwaitingModel:  {StateExecutingTools, StateIdle},
	StateExecutingTools: {StateAwaitingModel, StateAwaitingHuman, StateIdle},
	StateAwaitingHuman:  {StateAwaitingModel, StateIdle},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
