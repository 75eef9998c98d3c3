package domain

import (
	"time"
)

// EventType classifies a security event by the subsystem that produced it.
type EventType string

const (
	EventAuthentication EventType = "authentication"
	EventAuthorization  EventType = "authorization"
	EventDataAccess     EventType = "dataAccess"
	EventSystem         EventType = "system"
	EventSecurity       EventType = "security"
)

// IsValid reports whether t is one of the known event types.
func (t EventType) IsValid() bool {
	switch t {
	case EventAuthentication, EventAuthorization, EventDataAccess, EventSystem, EventSecurity:
		return true
	}
	return false
}

// Result is the outcome recorded for a security event.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultBlocked Result = "blocked"
)

// Severity ranks events and alerts. Higher is worse.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// Severities lists every severity from lowest to highest.
func Severities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// SecurityEvent is the ephemeral input fanned out to audit and monitoring.
type SecurityEvent struct {
	Type      EventType
	Action    string
	UserID    string
	SessionID string
	Resource  string
	Result    Result
	Severity  Severity
	Timestamp time.Time
	IPAddress string
	UserAgent string
	Details   Details
}

// IsHighSeverity reports whether the event warrants an alert on its own.
func (e SecurityEvent) IsHighSeverity() bool {
	return e.Severity.AtLeast(SeverityHigh)
}

// IsFailure reports whether the event records a failed or blocked outcome.
func (e SecurityEvent) IsFailure() bool {
	return e.Result == ResultFailure || e.Result == ResultBlocked
}
