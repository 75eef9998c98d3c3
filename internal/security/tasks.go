package security

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"bastion/internal/platform/scheduler"
)

// Task names, usable with the scheduler's RunNow.
const (
	TaskSessionCleanup   = "session_cleanup"
	TaskPermissionSweep  = "permission_cache_sweep"
	TaskKeyRotation      = "key_rotation"
	TaskAuditRetention   = "audit_retention"
	TaskCompliance       = "compliance_assessment"
	TaskMetricsCollect   = "metrics_collection"
	TaskAnomalyDetection = "anomaly_detection"
)

func (s *Service) tasks() []scheduler.Task {
	return []scheduler.Task{
		{Name: TaskSessionCleanup, Interval: 5 * time.Minute, Run: func(ctx context.Context) error {
			_, err := s.CleanupExpiredSessions(ctx)
			return err
		}},
		{Name: TaskPermissionSweep, Interval: time.Minute, Run: func(context.Context) error {
			s.authz.SweepExpired()
			return nil
		}},
		{Name: TaskKeyRotation, Interval: 24 * time.Hour, Timeout: 10 * time.Minute, Run: func(ctx context.Context) error {
			_, err := s.RotateKeys(ctx)
			return err
		}},
		{Name: TaskAuditRetention, Interval: time.Hour, Run: func(ctx context.Context) error {
			_, err := s.audit.SweepRetention(ctx)
			return err
		}},
		{Name: TaskCompliance, Interval: 24 * time.Hour, Timeout: 10 * time.Minute, Run: func(ctx context.Context) error {
			_, err := s.ValidateCompliance(ctx)
			return err
		}},
		{Name: TaskMetricsCollect, Interval: time.Minute, Run: func(ctx context.Context) error {
			s.monitoring.CollectMetrics(ctx)
			return nil
		}},
		{Name: TaskAnomalyDetection, Interval: 5 * time.Minute, Run: func(ctx context.Context) error {
			s.monitoring.RunAnomalyDetection(ctx)
			return nil
		}},
	}
}

// Start registers the periodic tasks and runs them, together with the
// monitoring worker, until Close. It returns once everything is launched.
func (s *Service) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.started {
		return errors.New("security service already started")
	}
	for _, t := range s.tasks() {
		if err := s.scheduler.Register(t); err != nil {
			return err
		}
	}
	s.started = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.monitoring.Run(gctx) })
	g.Go(func() error { return s.scheduler.Run(gctx) })
	go func() {
		err := g.Wait()
		s.runMu.Lock()
		s.runErr = err
		s.runMu.Unlock()
		close(s.done)
	}()

	s.logger.InfoContext(ctx, "security background tasks started", "tasks", len(s.tasks()))
	return nil
}

// RunTask runs one named background task immediately.
func (s *Service) RunTask(ctx context.Context, name string) error {
	return s.scheduler.RunNow(ctx, name)
}

// Close stops the background tasks, waits for them and shuts monitoring
// down. It is safe to call more than once.
func (s *Service) Close() error {
	s.runMu.Lock()
	if s.closed {
		s.runMu.Unlock()
		return nil
	}
	s.closed = true
	cancel, done := s.cancel, s.done
	s.runMu.Unlock()

	var err error
	if cancel != nil {
		cancel()
		<-done
		s.runMu.Lock()
		err = s.runErr
		s.runMu.Unlock()
	}
	s.monitoring.Shutdown()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}
