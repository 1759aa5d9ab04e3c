package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mfreeman451/statustracker/pkg/metrics"
	"github.com/mfreeman451/statustracker/pkg/models"
)

// Engine is a reconciliation pass that reports a summary.
type Engine interface {
	Name() string
	RunOnce(ctx context.Context) (models.TickSummary, error)
}

// Recorder keeps recent summaries of each engine.
type Recorder struct {
	mu      sync.RWMutex
	size    int
	history map[string]*metrics.TickHistory
}

// NewRecorder creates a Recorder retaining size summaries per engine. A
// non-positive size uses the history default.
func NewRecorder(size int) *Recorder {
	return &Recorder{
		size:    size,
		history: make(map[string]*metrics.TickHistory),
	}
}

// Record stores s as the latest summary of its engine.
func (r *Recorder) Record(s *models.TickSummary) {
	r.mu.Lock()
	h, ok := r.history[s.Engine]

	if !ok {
		h = metrics.NewTickHistory(r.size)
		r.history[s.Engine] = h
	}
	r.mu.Unlock()

	h.Add(s)
}

// Summaries returns the latest summary of every engine sorted by engine name.
func (r *Recorder) Summaries() []models.TickSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.TickSummary, 0, len(r.history))

	for _, h := range r.history {
		if last := h.Last(); last != nil {
			out = append(out, *last)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Engine < out[j].Engine })

	return out
}

// History returns the retained summaries of engine, newest first.
func (r *Recorder) History(engine string) []models.TickSummary {
	r.mu.RLock()
	h, ok := r.history[engine]
	r.mu.RUnlock()

	if !ok {
		return []models.TickSummary{}
	}

	return h.Recent()
}

// EngineTask adapts an engine into a Task whose summaries go to rec. rec may
// be nil.
func EngineTask(e Engine, interval func() time.Duration, rec *Recorder) Task {
	return Task{
		Name:     e.Name(),
		Interval: interval,
		Run: func(ctx context.Context) error {
			summary, err := e.RunOnce(ctx)

			if rec != nil {
				rec.Record(&summary)
			}

			return err
		},
	}
}
