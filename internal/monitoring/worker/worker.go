// Package worker persists recorded metrics off the request path.
package worker

import (
	"context"
	"log/slog"
	"sync/atomic"

	"bastion/internal/monitoring/models"
)

type Store interface {
	Append(ctx context.Context, m models.SecurityMetric) error
}

// Worker drains a bounded queue into the metric store. Submit never blocks:
// a full queue drops the point and counts it.
type Worker struct {
	store   Store
	inbox   chan models.SecurityMetric
	logger  *slog.Logger
	dropped atomic.Int64
	failed  atomic.Int64
}

func New(store Store, queueSize int, logger *slog.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Worker{
		store:  store,
		inbox:  make(chan models.SecurityMetric, queueSize),
		logger: logger,
	}
}

// Submit enqueues m and reports whether it was accepted.
func (w *Worker) Submit(m models.SecurityMetric) bool {
	select {
	case w.inbox <- m:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

// Run persists queued metrics until ctx is done, then flushes what is left.
// Store errors are logged and the worker keeps going.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case m := <-w.inbox:
			w.persist(ctx, m)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case m := <-w.inbox:
			w.persist(ctx, m)
		default:
			return
		}
	}
}

func (w *Worker) persist(ctx context.Context, m models.SecurityMetric) {
	if err := w.store.Append(ctx, m); err != nil {
		w.failed.Add(1)
		w.logger.WarnContext(ctx, "failed to persist metric", "metric", m.Name, "error", err)
	}
}

func (w *Worker) Dropped() int64 { return w.dropped.Load() }
func (w *Worker) Failed() int64  { return w.failed.Load() }
func (w *Worker) Pending() int   { return len(w.inbox) }
