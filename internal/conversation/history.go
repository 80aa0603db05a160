// Package conversation keeps the append-only dialogue shared with the inference service.
package conversation

import (
	"strings"
	"sync"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one utterance. Entries are never edited after Append.
type Entry struct {
	Role Role
	Text string
	At   time.Time
}

// Line renders the entry the way it is shown and sent as context.
func (e Entry) Line() string {
	switch e.Role {
	case RoleUser:
		return "You: " + e.Text
	case RoleAssistant:
		return "AI: " + e.Text
	default:
		return e.Text
	}
}

// History is safe for concurrent readers; the pipeline worker is its only writer.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

func NewHistory() *History {
	return &History{now: time.Now}
}

// Append adds an entry and returns it.
func (h *History) Append(role Role, text string) Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := Entry{Role: role, Text: text, At: h.now()}
	h.entries = append(h.entries, e)
	return e
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Entries returns a copy of all entries in order.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Transcript joins every entry line with a newline, oldest first.
func (h *History) Transcript() string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	lines := make([]string, len(h.entries))
	for i, e := range h.entries {
		lines[i] = e.Line()
	}
	return strings.Join(lines, "\n")
}
