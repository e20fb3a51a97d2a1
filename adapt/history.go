package adapt

import (
	"sync"
	"time"
)

// historyRetention is the rolling window persisted history is pruned to.
const historyRetention = 7 * 24 * time.Hour

// Entry records one applied adaptation. Append-only.
type Entry struct {
	Timestamp              time.Time `json:"timestamp"`
	FromProfileID          string    `json:"from_profile_id"`
	ToProfileID            string    `json:"to_profile_id"`
	TriggerRuleID          string    `json:"trigger_rule_id"`
	UserNotified           bool      `json:"user_notified"`
	MeasuredImprovementPct float64   `json:"measured_improvement_pct"`
}

// History is the in-memory adaptation log, pruned to a 7-day window on
// load.
type History struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{now: time.Now}
}

// Append adds an entry to the log.
func (h *History) Append(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
}

// Entries returns a copy of the full log, oldest first.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Since returns entries newer than the given window.
func (h *History) Since(window time.Duration) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-window)
	var out []Entry
	for _, e := range h.entries {
		if e.Timestamp.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Load replaces the log with persisted entries, dropping anything
// outside the retention window.
func (h *History) Load(entries []Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-historyRetention)
	h.entries = h.entries[:0]
	for _, e := range entries {
		if e.Timestamp.After(cutoff) {
			h.entries = append(h.entries, e)
		}
	}
}

// Len returns the number of retained entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
