package models

import (
	"time"

	"bastion/pkg/domain"
)

// AuditLog is one tamper-evident record. Records are append-only; the only
// mutation ever applied is archival by the retention sweep.
type AuditLog struct {
	ID           string           `json:"id"`
	Timestamp    time.Time        `json:"timestamp"`
	EventType    domain.EventType `json:"eventType"`
	Action       string           `json:"action"`
	UserID       string           `json:"userId,omitempty"`
	SessionID    string           `json:"sessionId,omitempty"`
	Resource     string           `json:"resource,omitempty"`
	Result       domain.Result    `json:"result"`
	Severity     domain.Severity  `json:"severity"`
	IPAddress    string           `json:"ipAddress,omitempty"`
	UserAgent    string           `json:"userAgent,omitempty"`
	Details      domain.Details   `json:"details,omitempty"`
	Hash         string           `json:"hash"`
	PreviousHash string           `json:"previousHash"`
	Signature    string           `json:"signature,omitempty"`
	ChainIndex   int64            `json:"chainIndex"`
	Archived     bool             `json:"archived"`
	ArchivedAt   time.Time        `json:"archivedAt,omitzero"`
}

// Category groups records for retention.
type Category string

const (
	CategorySecurity Category = "security"
	CategoryAudit    Category = "audit"
	CategorySystem   Category = "system"
	CategoryDebug    Category = "debug"
)

// Selector picks the records that belong to a category.
type Selector struct {
	EventTypes []domain.EventType
	Severities []domain.Severity
}

// Categories maps every retention category to the records it covers.
// Low-severity system events are debug noise; everything else keeps its
// natural bucket.
var Categories = map[Category]Selector{
	CategorySecurity: {EventTypes: []domain.EventType{domain.EventSecurity}},
	CategoryAudit: {EventTypes: []domain.EventType{
		domain.EventAuthentication, domain.EventAuthorization, domain.EventDataAccess,
	}},
	CategorySystem: {
		EventTypes: []domain.EventType{domain.EventSystem},
		Severities: []domain.Severity{domain.SeverityMedium, domain.SeverityHigh, domain.SeverityCritical},
	},
	CategoryDebug: {
		EventTypes: []domain.EventType{domain.EventSystem},
		Severities: []domain.Severity{domain.SeverityLow},
	},
}

// Query filters SearchLogs. Zero fields match everything.
type Query struct {
	EventType domain.EventType
	UserID    string
	Severity  domain.Severity
	Result    domain.Result
	From      time.Time
	To        time.Time
	Limit     int
}

const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 10000
)

// Normalize clamps Limit into [1, MaxQueryLimit], defaulting to DefaultQueryLimit.
func (q Query) Normalize() Query {
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultQueryLimit
	case q.Limit > MaxQueryLimit:
		q.Limit = MaxQueryLimit
	}
	return q
}

// Matches reports whether l satisfies every non-zero filter.
func (q Query) Matches(l *AuditLog) bool {
	if q.EventType != "" && l.EventType != q.EventType {
		return false
	}
	if q.UserID != "" && l.UserID != q.UserID {
		return false
	}
	if q.Severity != "" && l.Severity != q.Severity {
		return false
	}
	if q.Result != "" && l.Result != q.Result {
		return false
	}
	if !q.From.IsZero() && l.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && l.Timestamp.After(q.To) {
		return false
	}
	return true
}

// IntegrityError describes one broken record.
type IntegrityError struct {
	ChainIndex int64  `json:"chainIndex"`
	LogID      string `json:"logId,omitempty"`
	Reason     string `json:"reason"`
}

// Integrity failure reasons.
const (
	ReasonHashMismatch      = "hash_mismatch"
	ReasonSignatureMismatch = "signature_mismatch"
	ReasonChainBroken       = "previous_hash_mismatch"
	ReasonIndexGap          = "chain_index_gap"
	ReasonNotFound          = "log_not_found"
)

type IntegrityResult struct {
	Valid   bool             `json:"valid"`
	Checked int              `json:"checked"`
	Errors  []IntegrityError `json:"errors"`
}

// Fail records a break and marks the result invalid.
func (r *IntegrityResult) Fail(chainIndex int64, logID, reason string) {
	r.Valid = false
	r.Errors = append(r.Errors, IntegrityError{ChainIndex: chainIndex, LogID: logID, Reason: reason})
}

// ReportAnomaly is a heuristic finding over a report window.
type ReportAnomaly struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	UserID      string `json:"userId,omitempty"`
	Count       int    `json:"count"`
}

type Report struct {
	From               time.Time        `json:"from"`
	To                 time.Time        `json:"to"`
	GeneratedAt        time.Time        `json:"generatedAt"`
	TotalEvents        int              `json:"totalEvents"`
	ByType             map[string]int   `json:"byType"`
	BySeverity         map[string]int   `json:"bySeverity"`
	ByResult           map[string]int   `json:"byResult"`
	UniqueUsers        int              `json:"uniqueUsers"`
	HighSeverityEvents []*AuditLog      `json:"highSeverityEvents"`
	Anomalies          []ReportAnomaly  `json:"anomalies"`
	Integrity          *IntegrityResult `json:"integrity"`
}

// Outcome is the result of a best-effort LogEvent call.
type Outcome struct {
	Log *AuditLog
	Err error
}
