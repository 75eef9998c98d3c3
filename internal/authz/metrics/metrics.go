package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DecisionGranted = "granted"
	DecisionDenied  = "denied"
	DecisionError   = "error"
)

type Metrics struct {
	Decisions     *prometheus.CounterVec
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	CachedUsers   prometheus.Gauge
	Invalidations prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_authz_decisions_total",
			Help: "Permission checks by outcome",
		}, []string{"outcome"}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_authz_cache_hits_total",
			Help: "Permission lookups served from cache",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_authz_cache_misses_total",
			Help: "Permission lookups that loaded the user",
		}),
		CachedUsers: f.NewGauge(prometheus.GaugeOpts{
			Name: "bastion_authz_cached_users",
			Help: "Users with a cached permission set",
		}),
		Invalidations: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_authz_cache_invalidations_total",
			Help: "Cache entries dropped by a mutation",
		}),
	}
}

func (m *Metrics) IncDecision(outcome string) {
	m.Decisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncCacheHit() {
	m.CacheHits.Inc()
}

func (m *Metrics) IncCacheMiss() {
	m.CacheMisses.Inc()
}

func (m *Metrics) SetCachedUsers(n int) {
	m.CachedUsers.Set(float64(n))
}

func (m *Metrics) IncInvalidations() {
	m.Invalidations.Inc()
}
