// Package scheduler runs the periodic maintenance tasks of the security layer.
//
// Each task gets its own goroutine under one errgroup. A tick that arrives
// while the previous run of the same task is still executing is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownTask is returned by RunNow for an unregistered name.
var ErrUnknownTask = errors.New("unknown task")

// Task is one periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run. Zero means Interval.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type entry struct {
	Task
	running atomic.Bool
}

// Scheduler owns a set of tasks.
type Scheduler struct {
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	tasks   map[string]*entry
	started bool

	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a scheduler registering its metrics on reg.
func New(reg prometheus.Registerer, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  clock.New(),
		logger: slog.New(slog.DiscardHandler),
		tasks:  make(map[string]*entry),
		runs: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_scheduler_runs_total",
			Help: "Task runs by outcome (ok, error, skipped)",
		}, []string{"task", "outcome"}),
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bastion_scheduler_run_duration_seconds",
			Help:    "Duration of task runs",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a task. It must be called before Run.
func (s *Scheduler) Register(t Task) error {
	if t.Name == "" || t.Interval <= 0 || t.Run == nil {
		return fmt.Errorf("invalid task %q", t.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("register %q: scheduler already running", t.Name)
	}
	if _, dup := s.tasks[t.Name]; dup {
		return fmt.Errorf("register %q: duplicate task", t.Name)
	}
	s.tasks[t.Name] = &entry{Task: t}
	return nil
}

// Run blocks until ctx is cancelled. Task errors are logged, never fatal.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.started = true
	entries := make([]*entry, 0, len(s.tasks))
	for _, e := range s.tasks {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		g.Go(func() error {
			s.loop(ctx, e)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	ticker := s.clock.Ticker(e.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, e)
		}
	}
}

// RunNow executes the named task immediately, subject to the running guard.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrUnknownTask)
	}
	return s.execute(ctx, e)
}

func (s *Scheduler) execute(ctx context.Context, e *entry) error {
	if !e.running.CompareAndSwap(false, true) {
		s.runs.WithLabelValues(e.Name, "skipped").Inc()
		s.logger.Debug("task still running, skipping tick", "task", e.Name)
		return nil
	}
	defer e.running.Store(false)

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = e.Interval
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := s.clock.Now()
	err := e.Run(runCtx)
	s.duration.WithLabelValues(e.Name).Observe(s.clock.Since(start).Seconds())
	if err != nil {
		s.runs.WithLabelValues(e.Name, "error").Inc()
		s.logger.Error("scheduled task failed", "task", e.Name, "error", err)
		return err
	}
	s.runs.WithLabelValues(e.Name, "ok").Inc()
	return nil
}
