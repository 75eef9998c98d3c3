// Package notify delivers alert notifications to the configured channels.
package notify

import (
	"context"
	"log/slog"
	"time"

	"bastion/internal/monitoring/models"
	"bastion/pkg/domain"
)

type Kind string

const (
	KindAlert      Kind = "alert"
	KindEscalation Kind = "escalation"
	KindIncident   Kind = "incident"
	KindEmergency  Kind = "emergency"
)

// Notification is what channels deliver. Level is the alert's escalation
// level; routes that only serve escalations ignore level 0.
type Notification struct {
	Kind       Kind            `json:"kind"`
	Level      int             `json:"level"`
	Severity   domain.Severity `json:"severity"`
	Type       string          `json:"type"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	AlertID    string          `json:"alertId,omitempty"`
	IncidentID string          `json:"incidentId,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Details    domain.Details  `json:"details,omitempty"`
}

// Key identifies the notified record for partitioning.
func (n Notification) Key() string {
	if n.AlertID != "" {
		return n.AlertID
	}
	return n.IncidentID
}

func ForAlert(a *models.SecurityAlert, kind Kind, at time.Time) Notification {
	return Notification{
		Kind:      kind,
		Level:     a.EscalationLevel,
		Severity:  a.Severity,
		Type:      a.Type,
		Title:     a.Title,
		Message:   a.Description,
		AlertID:   a.ID,
		Timestamp: at,
		Details:   a.Details,
	}
}

func ForIncident(i *models.Incident, at time.Time) Notification {
	return Notification{
		Kind:       KindIncident,
		Severity:   i.Severity,
		Type:       i.Type,
		Title:      "Security incident declared",
		Message:    "incident " + i.ID + " of type " + i.Type,
		IncidentID: i.ID,
		Timestamp:  at,
		Details:    i.Details,
	}
}

type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// LogChannel writes notifications to a structured logger. It never fails and
// serves as the fallback for every other channel.
type LogChannel struct {
	logger *slog.Logger
}

func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(ctx context.Context, n Notification) error {
	level := slog.LevelWarn
	if n.Kind == KindEmergency || n.Kind == KindIncident || n.Severity == domain.SeverityCritical {
		level = slog.LevelError
	}
	c.logger.Log(ctx, level, "security notification",
		"kind", n.Kind,
		"level", n.Level,
		"severity", n.Severity,
		"type", n.Type,
		"title", n.Title,
		"message", n.Message,
		"alert_id", n.AlertID,
		"incident_id", n.IncidentID,
	)
	return nil
}
