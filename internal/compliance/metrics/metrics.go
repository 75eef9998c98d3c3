package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Score            *prometheus.GaugeVec
	Assessments      *prometheus.CounterVec
	Reports          prometheus.Counter
	CriticalFindings prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Score: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bastion_compliance_score",
			Help: "Latest compliance score per standard, 0-100; standard=\"overall\" for all",
		}, []string{"standard"}),
		Assessments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_compliance_assessments_total",
			Help: "Compliance assessments by outcome",
		}, []string{"outcome"}),
		Reports: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_compliance_reports_total",
			Help: "Compliance reports generated",
		}),
		CriticalFindings: f.NewGauge(prometheus.GaugeOpts{
			Name: "bastion_compliance_critical_findings",
			Help: "Critical findings in the latest assessment",
		}),
	}
}

func (m *Metrics) SetScore(standard string, v float64) {
	m.Score.WithLabelValues(standard).Set(v)
}

func (m *Metrics) ObserveAssessment(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Assessments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncReports() {
	m.Reports.Inc()
}

func (m *Metrics) SetCriticalFindings(n int) {
	m.CriticalFindings.Set(float64(n))
}
