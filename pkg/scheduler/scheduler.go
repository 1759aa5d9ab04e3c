// Package scheduler pkg/scheduler/scheduler.go runs registered tasks at
// per-task intervals without overlapping runs of the same task.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const fallbackInterval = 30 * time.Second

var (
	errInvalidTask    = errors.New("invalid task")
	errDuplicateTask  = errors.New("task already registered")
	errAlreadyStarted = errors.New("scheduler already started")
	errTaskPanicked   = errors.New("task panicked")
)

// Task is a unit of periodic work. Interval is consulted after every run, so
// a changed interval takes effect for the next delay.
type Task struct {
	Name     string
	Interval func() time.Duration
	Run      func(ctx context.Context) error
}

// TaskStatus describes the runs of one task so far.
type TaskStatus struct {
	Name         string        `json:"name"`
	Runs         int64         `json:"runs"`
	Failures     int64         `json:"failures"`
	Running      bool          `json:"running"`
	LastStarted  time.Time     `json:"last_started"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run"`
}

// Scheduler fires each task immediately on Start and then again one interval
// after the previous run returned.
type Scheduler struct {
	clock  clock.Clock
	logger *zap.Logger

	mu      sync.Mutex
	tasks   []Task
	status  map[string]*TaskStatus
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock used for delays.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

func New(logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		clock:  clock.New(),
		logger: logger.Named("scheduler"),
		status: make(map[string]*TaskStatus),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register adds a task. Tasks must be registered before Start.
func (s *Scheduler) Register(task Task) error {
	if task.Name == "" || task.Run == nil || task.Interval == nil {
		return fmt.Errorf("%w: name, interval and run are required", errInvalidTask)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errAlreadyStarted
	}

	if _, ok := s.status[task.Name]; ok {
		return fmt.Errorf("%w: %s", errDuplicateTask, task.Name)
	}

	s.tasks = append(s.tasks, task)
	s.status[task.Name] = &TaskStatus{Name: task.Name}

	return nil
}

// Start launches one loop per task and returns immediately. The loops stop
// when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errAlreadyStarted
	}

	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)

	for _, task := range s.tasks {
		s.wg.Add(1)

		go s.loop(ctx, task)
	}

	s.logger.Info("Scheduler started", zap.Int("tasks", len(s.tasks)))

	return nil
}

// Stop cancels all loops and waits for running tasks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	s.wg.Wait()
}

// Status returns a snapshot of every task, sorted by name.
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	defer s.wg.Done()

	for {
		s.runTask(ctx, task)

		interval := task.Interval()
		if interval <= 0 {
			s.logger.Warn("Invalid task interval, using fallback",
				zap.String("task", task.Name),
				zap.Duration("interval", interval),
				zap.Duration("fallback", fallbackInterval))

			interval = fallbackInterval
		}

		s.mu.Lock()
		s.status[task.Name].NextRun = s.clock.Now().Add(interval)
		s.mu.Unlock()

		timer := s.clock.Timer(interval)

		select {
		case <-ctx.Done():
			timer.Stop()

			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, task Task) {
	if ctx.Err() != nil {
		return
	}

	start := s.clock.Now()

	s.mu.Lock()
	st := s.status[task.Name]
	st.Running = true
	st.LastStarted = start
	s.mu.Unlock()

	err := safeRun(ctx, task)
	elapsed := s.clock.Since(start)

	s.mu.Lock()
	st.Running = false
	st.Runs++
	st.LastDuration = elapsed
	st.LastError = ""

	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Task run failed",
			zap.String("task", task.Name), zap.Duration("duration", elapsed), zap.Error(err))

		return
	}

	s.logger.Debug("Task run complete", zap.String("task", task.Name), zap.Duration("duration", elapsed))
}

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", errTaskPanicked, task.Name, r)
		}
	}()

	return task.Run(ctx)
}
