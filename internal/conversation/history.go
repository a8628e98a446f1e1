// Package conversation keeps the rolling turn history the router sees and
// the per-task tool trace the task loop sees.
package conversation

import (
	"strings"
	"sync"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role
	Content string
}

const DefaultMaxExchanges = 20

// History is a bounded FIFO of turns holding 2*maxExchanges entries. The
// oldest turn is dropped when a new one does not fit.
type History struct {
	mu    sync.Mutex
	turns []Turn
	limit int
}

func NewHistory(maxExchanges int) *History {
	if maxExchanges <= 0 {
		maxExchanges = DefaultMaxExchanges
	}
	return &History{limit: 2 * maxExchanges}
}

func (h *History) AddUser(content string)      { h.add(RoleUser, content) }
func (h *History) AddAssistant(content string) { h.add(RoleAssistant, content) }

func (h *History) add(role Role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.turns) == h.limit {
		copy(h.turns, h.turns[1:])
		h.turns = h.turns[:len(h.turns)-1]
	}
	h.turns = append(h.turns, Turn{Role: role, Content: content})
}

// Snapshot returns the turns oldest first.
func (h *History) Snapshot() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Turn(nil), h.turns...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}

// Format renders the history as "ROLE: content" lines, oldest first.
func (h *History) Format() string {
	return Format(h.Snapshot())
}

func Format(turns []Turn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = strings.ToUpper(string(t.Role)) + ": " + t.Content
	}
	return strings.Join(lines, "\n")
}
