package metrics

import (
	"sync"

	"github.com/mfreeman451/statustracker/pkg/models"
)

const defaultHistorySize = 32

// TickHistory is a fixed-size ring of the most recent tick summaries of one
// engine.
type TickHistory struct {
	mu      sync.RWMutex
	entries []models.TickSummary
	pos     int
	count   int
}

// NewTickHistory creates a ring holding size summaries. A non-positive size
// uses the default.
func NewTickHistory(size int) *TickHistory {
	if size <= 0 {
		size = defaultHistorySize
	}

	return &TickHistory{entries: make([]models.TickSummary, size)}
}

// Add stores s, overwriting the oldest entry once the ring is full.
func (h *TickHistory) Add(s *models.TickSummary) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.pos] = *s
	h.pos = (h.pos + 1) % len(h.entries)

	if h.count < len(h.entries) {
		h.count++
	}
}

// Recent returns the stored summaries, newest first.
func (h *TickHistory) Recent() []models.TickSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := len(h.entries)
	out := make([]models.TickSummary, 0, h.count)

	for i := 0; i < h.count; i++ {
		idx := (h.pos - i - 1 + size) % size
		out = append(out, h.entries[idx])
	}

	return out
}

// Last returns the newest summary, or nil when the ring is empty.
func (h *TickHistory) Last() *models.TickSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return nil
	}

	last := h.entries[(h.pos-1+len(h.entries))%len(h.entries)]

	return &last
}
