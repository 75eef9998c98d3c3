package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	LogsWritten       *prometheus.CounterVec
	PersistFailures   prometheus.Counter
	ChainConflicts    prometheus.Counter
	IntegrityFailures prometheus.Counter
	ChainLength       prometheus.Gauge
	Archived          *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LogsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_audit_logs_written_total",
			Help: "Audit records persisted, by event type",
		}, []string{"event_type"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_audit_persist_failures_total",
			Help: "Audit records that could not be persisted",
		}),
		ChainConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_audit_chain_conflicts_total",
			Help: "Appends rejected because another writer took the chain index",
		}),
		IntegrityFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_audit_integrity_failures_total",
			Help: "Integrity errors reported by verification",
		}),
		ChainLength: f.NewGauge(prometheus.GaugeOpts{
			Name: "bastion_audit_chain_length",
			Help: "Next chain index to be written",
		}),
		Archived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_audit_archived_total",
			Help: "Records archived by the retention sweep, by category",
		}, []string{"category"}),
	}
}

func (m *Metrics) IncLogsWritten(eventType string) {
	m.LogsWritten.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}

func (m *Metrics) IncChainConflicts() {
	m.ChainConflicts.Inc()
}

func (m *Metrics) AddIntegrityFailures(n int) {
	m.IntegrityFailures.Add(float64(n))
}

func (m *Metrics) SetChainLength(n int64) {
	m.ChainLength.Set(float64(n))
}

func (m *Metrics) AddArchived(category string, n int64) {
	m.Archived.WithLabelValues(category).Add(float64(n))
}
