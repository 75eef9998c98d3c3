package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"bastion/internal/monitoring/metrics"
	"bastion/pkg/platform/circuit"
)

// Notification outcomes, also used as metric labels.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeThrottled = "throttled"
	OutcomeFallback  = "fallback"
)

const defaultRatePerMinute = 60

type route struct {
	channel  Channel
	minLevel int
	limiter  *rate.Limiter
	breaker  *circuit.Breaker
}

// Report lists per channel name what happened to one notification.
type Report map[string]string

// Dispatcher fans notifications out to channels. Each channel has its own
// rate limiter and circuit breaker; anything a channel cannot take goes to
// the fallback channel instead.
type Dispatcher struct {
	routes   []*route
	fallback Channel
	perMin   int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type DispatcherOption func(*Dispatcher)

func WithRatePerMinute(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.perMin = n
		}
	}
}

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher builds a dispatcher that falls back to fallback, or to a
// discarding log channel when fallback is nil.
func NewDispatcher(fallback Channel, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		fallback: fallback,
		perMin:   defaultRatePerMinute,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.fallback == nil {
		d.fallback = NewLogChannel(d.logger)
	}
	if d.metrics == nil {
		d.metrics = metrics.New(prometheus.NewRegistry())
	}
	return d
}

// Add registers ch for notifications whose level is at least minLevel.
// Channels are not safe to add once dispatching has started.
func (d *Dispatcher) Add(ch Channel, minLevel int) {
	d.routes = append(d.routes, &route{
		channel:  ch,
		minLevel: minLevel,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(d.perMin)), d.perMin),
		breaker:  circuit.New(ch.Name()),
	})
}

// Channels lists registered channel names in registration order.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.routes))
	for _, r := range d.routes {
		names = append(names, r.channel.Name())
	}
	return names
}

// Notify delivers n to every channel whose minimum level n reaches, subject
// to rate limiting.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) Report {
	report := make(Report, len(d.routes))
	for _, r := range d.routes {
		if n.Level < r.minLevel {
			continue
		}
		if !r.limiter.Allow() {
			d.record(r.channel.Name(), OutcomeThrottled)
			d.toFallback(ctx, n, r.channel.Name(), "throttled")
			report[r.channel.Name()] = OutcomeThrottled
			continue
		}
		report[r.channel.Name()] = d.send(ctx, r, n)
	}
	if len(report) == 0 {
		d.toFallback(ctx, n, "", "no channel for level")
		report[d.fallback.Name()] = OutcomeFallback
	}
	return report
}

// Broadcast delivers n to every channel regardless of level and rate limits.
func (d *Dispatcher) Broadcast(ctx context.Context, n Notification) Report {
	report := make(Report, len(d.routes)+1)
	for _, r := range d.routes {
		report[r.channel.Name()] = d.send(ctx, r, n)
	}
	if _, done := report[d.fallback.Name()]; !done {
		if err := d.fallback.Send(ctx, n); err == nil {
			report[d.fallback.Name()] = OutcomeDelivered
		}
	}
	return report
}

func (d *Dispatcher) send(ctx context.Context, r *route, n Notification) string {
	name := r.channel.Name()
	if err := r.channel.Send(ctx, n); err != nil {
		_, change := r.breaker.RecordFailure()
		if change.Opened {
			d.logger.WarnContext(ctx, "notification channel circuit opened", "channel", name)
		}
		d.logger.WarnContext(ctx, "notification delivery failed", "channel", name, "error", err)
		d.record(name, OutcomeFailed)
		d.toFallback(ctx, n, name, "delivery failed")
		return OutcomeFallback
	}
	usePrimary, change := r.breaker.RecordSuccess()
	if change.Closed {
		d.logger.InfoContext(ctx, "notification channel circuit closed", "channel", name)
	}
	d.record(name, OutcomeDelivered)
	if !usePrimary {
		// Circuit still open, so the fallback gets a copy too.
		d.toFallback(ctx, n, name, "circuit open")
	}
	return OutcomeDelivered
}

func (d *Dispatcher) toFallback(ctx context.Context, n Notification, from, reason string) {
	if from == d.fallback.Name() {
		return
	}
	if err := d.fallback.Send(ctx, n); err != nil {
		d.logger.ErrorContext(ctx, "fallback notification failed", "channel", from, "reason", reason, "error", err)
		return
	}
	d.record(d.fallback.Name(), OutcomeFallback)
}

func (d *Dispatcher) record(channel, outcome string) {
	d.metrics.IncNotification(channel, outcome)
}

// BreakerState reports the circuit state of the named channel.
func (d *Dispatcher) BreakerState(name string) (circuit.State, bool) {
	for _, r := range d.routes {
		if r.channel.Name() == name {
			return r.breaker.State(), true
		}
	}
	return circuit.StateClosed, false
}
