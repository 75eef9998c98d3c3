package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Operations  *prometheus.CounterVec
	KeysCreated prometheus.Counter
	KeysRotated prometheus.Counter
	KeysRevoked prometheus.Counter
	CachedKeys  prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_encryption_operations_total",
			Help: "Encrypt and decrypt calls by outcome",
		}, []string{"operation", "outcome"}),
		KeysCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_encryption_keys_created_total",
			Help: "Data keys created",
		}),
		KeysRotated: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_encryption_keys_rotated_total",
			Help: "Data keys deprecated by rotation",
		}),
		KeysRevoked: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_encryption_keys_revoked_total",
			Help: "Data keys revoked",
		}),
		CachedKeys: f.NewGauge(prometheus.GaugeOpts{
			Name: "bastion_encryption_cached_keys",
			Help: "Derived keys held in memory",
		}),
	}
}

func (m *Metrics) ObserveOperation(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) IncKeysCreated() {
	m.KeysCreated.Inc()
}

func (m *Metrics) IncKeysRotated() {
	m.KeysRotated.Inc()
}

func (m *Metrics) IncKeysRevoked() {
	m.KeysRevoked.Inc()
}

func (m *Metrics) SetCachedKeys(n int) {
	m.CachedKeys.Set(float64(n))
}
