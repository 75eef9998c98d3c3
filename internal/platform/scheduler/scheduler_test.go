package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
)

type SchedulerSuite struct {
	suite.Suite
	clock *clock.Mock
	reg   *prometheus.Registry
	sched *Scheduler
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.clock = clock.NewMock()
	s.reg = prometheus.NewRegistry()
	s.sched = New(s.reg, WithClock(s.clock))
}

func (s *SchedulerSuite) TestRegisterValidation() {
	s.Error(s.sched.Register(Task{Name: "", Interval: time.Minute, Run: noop}))
	s.Error(s.sched.Register(Task{Name: "x", Interval: 0, Run: noop}))
	s.Require().NoError(s.sched.Register(Task{Name: "x", Interval: time.Minute, Run: noop}))
	s.Error(s.sched.Register(Task{Name: "x", Interval: time.Minute, Run: noop}), "duplicate")
}

func (s *SchedulerSuite) TestTicksRunTask() {
	var count atomic.Int32
	s.Require().NoError(s.sched.Register(Task{
		Name:     "session_cleanup",
		Interval: 5 * time.Minute,
		Run: func(context.Context) error {
			count.Add(1)
			return nil
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.sched.Run(ctx) }()

	// Let the loop goroutine create its ticker before advancing.
	s.Eventually(func() bool {
		s.clock.Add(5 * time.Minute)
		return count.Load() >= 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	s.NoError(<-done)
}

func (s *SchedulerSuite) TestRunNowSkipsWhileRunning() {
	release := make(chan struct{})
	started := make(chan struct{})
	s.Require().NoError(s.sched.Register(Task{
		Name:     "key_rotation",
		Interval: time.Hour,
		Run: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
	}))

	go func() { _ = s.sched.RunNow(context.Background(), "key_rotation") }()
	<-started

	s.NoError(s.sched.RunNow(context.Background(), "key_rotation"))
	s.Equal(1.0, testutil.ToFloat64(s.sched.runs.WithLabelValues("key_rotation", "skipped")))
	close(release)
}

func (s *SchedulerSuite) TestRunNowReportsErrors() {
	boom := errors.New("boom")
	s.Require().NoError(s.sched.Register(Task{
		Name:     "retention",
		Interval: time.Hour,
		Run:      func(context.Context) error { return boom },
	}))

	s.ErrorIs(s.sched.RunNow(context.Background(), "retention"), boom)
	s.Equal(1.0, testutil.ToFloat64(s.sched.runs.WithLabelValues("retention", "error")))
	s.ErrorIs(s.sched.RunNow(context.Background(), "nope"), ErrUnknownTask)
}

func noop(context.Context) error { return nil }
