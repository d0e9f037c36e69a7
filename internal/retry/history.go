package retry

import (
	"sync"
	"time"

	"github.com/yamakatsunamamugi/autoai/internal/errors"
)

// defaultHistorySize bounds the per-manager failure history.
const defaultHistorySize = 50

// HistoryEntry records one classified failure.
type HistoryEntry struct {
	ErrorType errors.Classification
	Timestamp time.Time
}

// History is a bounded ring buffer of classified failures. It exists for
// escalation decisions and diagnostics only and is not authoritative state.
// It is safe for concurrent use.
type History struct {
	mu      sync.Mutex
	entries []HistoryEntry
	next    int
	full    bool
}

// NewHistory creates a history ring with the given capacity.
// A capacity of 0 or less uses the default (50).
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = defaultHistorySize
	}
	return &History{entries: make([]HistoryEntry, capacity)}
}

// Append records a classified failure, evicting the oldest entry when full.
func (h *History) Append(class errors.Classification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.next] = HistoryEntry{ErrorType: class, Timestamp: time.Now()}
	h.next++
	if h.next == len(h.entries) {
		h.next = 0
		h.full = true
	}
}

// Len returns the number of recorded entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.full {
		return len(h.entries)
	}
	return h.next
}

// Entries returns the recorded failures in chronological order.
func (h *History) Entries() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.full {
		out := make([]HistoryEntry, h.next)
		copy(out, h.entries[:h.next])
		return out
	}

	out := make([]HistoryEntry, 0, len(h.entries))
	out = append(out, h.entries[h.next:]...)
	out = append(out, h.entries[:h.next]...)
	return out
}

// Last returns the most recent entry and true, or a zero entry and false
// if nothing has been recorded.
func (h *History) Last() (HistoryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.full && h.next == 0 {
		return HistoryEntry{}, false
	}
	idx := h.next - 1
	if idx < 0 {
		idx = len(h.entries) - 1
	}
	return h.entries[idx], true
}
