package models

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"bastion/pkg/domain"
)

// SecurityMetric is one recorded data point.
type SecurityMetric struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

type AlertStatus string

const (
	AlertOpen          AlertStatus = "open"
	AlertAcknowledged  AlertStatus = "acknowledged"
	AlertResolved      AlertStatus = "resolved"
	AlertFalsePositive AlertStatus = "false_positive"
)

var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertOpen:         {AlertAcknowledged, AlertFalsePositive},
	AlertAcknowledged: {AlertResolved, AlertFalsePositive},
}

// CanTransition reports whether an alert in status s may move to next.
// Resolved and false positive are terminal.
func (s AlertStatus) CanTransition(next AlertStatus) bool {
	return slices.Contains(alertTransitions[s], next)
}

// AlertEmergency is the type of alerts raised by an emergency lockdown.
const AlertEmergency = "emergency"

// SecurityAlert is raised by monitoring and moved through its lifecycle by
// operators. Escalation only touches the escalation fields, never Status.
type SecurityAlert struct {
	ID               string          `json:"id"`
	Type             string          `json:"type"`
	Severity         domain.Severity `json:"severity"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Timestamp        time.Time       `json:"timestamp"`
	UserID           string          `json:"userId,omitempty"`
	SessionID        string          `json:"sessionId,omitempty"`
	IPAddress        string          `json:"ipAddress,omitempty"`
	Details          domain.Details  `json:"details,omitempty"`
	Status           AlertStatus     `json:"status"`
	AcknowledgedBy   string          `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt   time.Time       `json:"acknowledgedAt,omitzero"`
	ResolvedBy       string          `json:"resolvedBy,omitempty"`
	ResolvedAt       time.Time       `json:"resolvedAt,omitzero"`
	EscalationLevel  int             `json:"escalationLevel"`
	EscalatedAt      time.Time       `json:"escalatedAt,omitzero"`
	NextEscalationAt time.Time       `json:"nextEscalationAt,omitzero"`
}

func (a *SecurityAlert) Clone() *SecurityAlert {
	if a == nil {
		return nil
	}
	c := *a
	c.Details = maps.Clone(a.Details)
	return &c
}

var alertTitles = map[domain.EventType]map[string]string{
	domain.EventAuthentication: {
		"login":         "Login attempt",
		"failed_login":  "Failed login",
		"mfa_challenge": "MFA challenge",
	},
	domain.EventAuthorization: {
		"permission_denied":    "Access denied",
		"privilege_escalation": "Privilege escalation",
	},
	domain.EventSecurity: {
		"anomaly_detected":  "Anomaly detected",
		"intrusion_attempt": "Intrusion attempt",
	},
}

// AlertFromEvent builds an open alert describing ev.
func AlertFromEvent(ev domain.SecurityEvent) *SecurityAlert {
	title, ok := alertTitles[ev.Type][ev.Action]
	if !ok {
		title = fmt.Sprintf("Security event: %s", ev.Type)
	}
	parts := []string{fmt.Sprintf("%s - result: %s", ev.Action, ev.Result)}
	if ev.UserID != "" {
		parts = append(parts, "user: "+ev.UserID)
	}
	if ev.IPAddress != "" {
		parts = append(parts, "ip: "+ev.IPAddress)
	}
	if ev.Resource != "" {
		parts = append(parts, "resource: "+ev.Resource)
	}
	return &SecurityAlert{
		Type:        string(ev.Type),
		Severity:    ev.Severity,
		Title:       title,
		Description: strings.Join(parts, " - "),
		Timestamp:   ev.Timestamp,
		UserID:      ev.UserID,
		SessionID:   ev.SessionID,
		IPAddress:   ev.IPAddress,
		Details:     ev.Details.Redact(),
	}
}

// Anomaly types.
const (
	AnomalyRepeatedFailedLogins = "repeated_failed_logins"
	AnomalyPrivilegeEscalation  = "privilege_escalation"
	AnomalyDataExfiltration     = "data_exfiltration"
	AnomalySuspiciousActivity   = "suspicious_activity"
	AnomalyUnusualAccessTime    = "unusual_access_time"
)

// AlertConfidence is the confidence an anomaly must exceed to raise an alert.
const AlertConfidence = 0.8

// Anomaly is the output of one heuristic.
type Anomaly struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Severity    domain.Severity `json:"severity"`
	Description string          `json:"description"`
	Confidence  float64         `json:"confidence"`
	Timestamp   time.Time       `json:"timestamp"`
	UserID      string          `json:"userId,omitempty"`
	IPAddress   string          `json:"ipAddress,omitempty"`
	Details     domain.Details  `json:"details,omitempty"`
}

// ShouldAlert reports whether the anomaly is strong enough to raise an alert.
func (a Anomaly) ShouldAlert() bool {
	return a.Confidence > AlertConfidence && a.Severity.AtLeast(domain.SeverityHigh)
}

// Key identifies what the anomaly is about, the IP for per-IP heuristics and
// the user otherwise.
func (a Anomaly) Key() string {
	if a.Type == AnomalyRepeatedFailedLogins {
		return a.Type + ":" + a.IPAddress
	}
	return a.Type + ":" + a.UserID
}

type IncidentStatus string

const (
	IncidentOpen     IncidentStatus = "open"
	IncidentResolved IncidentStatus = "resolved"
)

type TimelineEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
}

// Incident is the highest-severity record; it always opens as critical.
type Incident struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Severity  domain.Severity `json:"severity"`
	Status    IncidentStatus  `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	Details   domain.Details  `json:"details,omitempty"`
	Timeline  []TimelineEntry `json:"timeline"`
}

func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}
	c := *i
	c.Details = maps.Clone(i.Details)
	c.Timeline = slices.Clone(i.Timeline)
	return &c
}

// Profile is the learned behavior of one user. It is a soft signal and never
// blocks anything.
type Profile struct {
	UserID      string         `json:"userId"`
	AccessHours map[int]int    `json:"accessHours"`
	IPAddresses []string       `json:"ipAddresses"`
	UserAgents  []string       `json:"userAgents"`
	Devices     []string       `json:"devices"`
	Actions     map[string]int `json:"actions"`
	Events      int            `json:"events"`
	LastUpdate  time.Time      `json:"lastUpdate"`
}

func NewProfile(userID string) *Profile {
	return &Profile{
		UserID:      userID,
		AccessHours: make(map[int]int),
		Actions:     make(map[string]int),
	}
}

func (p *Profile) Clone() *Profile {
	c := *p
	c.AccessHours = maps.Clone(p.AccessHours)
	c.Actions = maps.Clone(p.Actions)
	c.IPAddresses = slices.Clone(p.IPAddresses)
	c.UserAgents = slices.Clone(p.UserAgents)
	c.Devices = slices.Clone(p.Devices)
	return &c
}

// SeenHour reports whether the user has been active at hour before.
func (p *Profile) SeenHour(hour int) bool {
	return p.AccessHours[hour] > 0
}

// IsOffHours reports whether hour falls outside 06:00-22:00.
func IsOffHours(hour int) bool {
	return hour < 6 || hour > 22
}

// SecurityMetrics is the dashboard overview.
type SecurityMetrics struct {
	GeneratedAt    time.Time      `json:"generatedAt"`
	Overview       Overview       `json:"overview"`
	Authentication Authentication `json:"authentication"`
	Authorization  Authorization  `json:"authorization"`
	DataAccess     DataAccess     `json:"dataAccess"`
	System         System         `json:"system"`
	Trends         Trends         `json:"trends"`
}

type Overview struct {
	ActiveAlerts   int     `json:"activeAlerts"`
	CriticalAlerts int     `json:"criticalAlerts"`
	HighAlerts     int     `json:"highAlerts"`
	TotalEvents24h float64 `json:"totalEvents24h"`
	TotalEvents7d  float64 `json:"totalEvents7d"`
}

type Authentication struct {
	SuccessfulLogins24h float64 `json:"successfulLogins24h"`
	FailedLogins24h     float64 `json:"failedLogins24h"`
	MFAChallenges24h    float64 `json:"mfaChallenges24h"`
	AccountLockouts24h  float64 `json:"accountLockouts24h"`
}

type Authorization struct {
	PermissionDenied24h    float64 `json:"permissionDenied24h"`
	PrivilegeEscalation24h float64 `json:"privilegeEscalation24h"`
}

type DataAccess struct {
	DataReads24h        float64 `json:"dataReads24h"`
	DataWrites24h       float64 `json:"dataWrites24h"`
	DataExports24h      float64 `json:"dataExports24h"`
	SuspiciousAccess24h float64 `json:"suspiciousAccess24h"`
}

type System struct {
	SystemErrors24h  float64 `json:"systemErrors24h"`
	ConfigChanges24h float64 `json:"configChanges24h"`
}

// Trends are percentage changes of the last 24h against the 24h before.
type Trends struct {
	Alerts float64 `json:"alerts"`
	Logins float64 `json:"logins"`
	Errors float64 `json:"errors"`
}
