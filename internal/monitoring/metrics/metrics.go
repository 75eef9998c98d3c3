package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Events        *prometheus.CounterVec
	Anomalies     *prometheus.CounterVec
	Alerts        *prometheus.CounterVec
	Escalations   prometheus.Counter
	Transitions   *prometheus.CounterVec
	OpenAlerts    prometheus.Gauge
	Incidents     prometheus.Counter
	Notifications *prometheus.CounterVec
	MetricsQueued *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_monitoring_events_total",
			Help: "Security events processed, by type and result",
		}, []string{"type", "result"}),
		Anomalies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_monitoring_anomalies_total",
			Help: "Anomalies detected, by type",
		}, []string{"type"}),
		Alerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_monitoring_alerts_total",
			Help: "Alerts raised, by type and severity",
		}, []string{"type", "severity"}),
		Escalations: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_monitoring_alert_escalations_total",
			Help: "Alert escalations fired",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_monitoring_alert_transitions_total",
			Help: "Alert status changes, by target status",
		}, []string{"status"}),
		OpenAlerts: f.NewGauge(prometheus.GaugeOpts{
			Name: "bastion_monitoring_open_alerts",
			Help: "Alerts currently open",
		}),
		Incidents: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_monitoring_incidents_total",
			Help: "Security incidents declared",
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_monitoring_notifications_total",
			Help: "Notification attempts, by channel and outcome",
		}, []string{"channel", "outcome"}),
		MetricsQueued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_monitoring_metric_points_total",
			Help: "Metric points handed to the persistence worker, by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncEvent(eventType, result string) {
	m.Events.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) IncAnomaly(anomalyType string) {
	m.Anomalies.WithLabelValues(anomalyType).Inc()
}

func (m *Metrics) IncAlert(alertType, severity string) {
	m.Alerts.WithLabelValues(alertType, severity).Inc()
}

func (m *Metrics) IncTransition(status string) {
	m.Transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncNotification(channel, outcome string) {
	m.Notifications.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) IncMetricQueued(accepted bool) {
	if accepted {
		m.MetricsQueued.WithLabelValues("queued").Inc()
		return
	}
	m.MetricsQueued.WithLabelValues("dropped").Inc()
}
