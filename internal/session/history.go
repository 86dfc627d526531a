package session

import (
	"sync"

	"anchoredit/engine/internal/llm"
)

// DefaultHistoryLimit bounds the number of turns kept.
const DefaultHistoryLimit = 40

// History is the bounded conversation log. Appends never evict; Evict runs
// at turn boundaries so a tool call is never separated from its response
// mid-turn.
type History struct {
	mu    sync.Mutex
	turns []llm.Turn
	limit int
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

func (h *History) Append(turns ...llm.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turns...)
}

// Evict drops the oldest turns beyond the limit.
func (h *History) Evict() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if over := len(h.turns) - h.limit; over > 0 {
		h.turns = append([]llm.Turn(nil), h.turns[over:]...)
	}
}

// Turns returns a copy of every stored turn.
func (h *History) Turns() []llm.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]llm.Turn(nil), h.turns...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// SendView is the history as sent to the model: it always starts with a
// user turn, or is empty.
func (h *History) SendView() []llm.Turn {
	return TrimToUserHead(h.Turns())
}

// TrimToUserHead drops leading turns until the first user turn.
func TrimToUserHead(turns []llm.Turn) []llm.Turn {
	for i, t := range turns {
		if t.Role == llm.RoleUser {
			return turns[i:]
		}
	}
	return nil
}
