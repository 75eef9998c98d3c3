package models

import (
	"maps"
	"slices"
	"time"
)

type Status string

const (
	StatusCompliant     Status = "compliant"
	StatusNonCompliant  Status = "non_compliant"
	StatusPartial       Status = "partial"
	StatusNotApplicable Status = "not_applicable"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusCompliant, StatusNonCompliant, StatusPartial, StatusNotApplicable:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type Remediation struct {
	Actions     []string  `json:"actions"`
	Deadline    time.Time `json:"deadline"`
	Responsible string    `json:"responsible"`
	Status      string    `json:"status"`
}

// Control is one requirement of a standard. Checks name the live signals
// that decide its status on every assessment; a control without checks
// keeps the status it was last given.
type Control struct {
	ID             string       `json:"id"`
	Standard       string       `json:"standard"`
	Category       string       `json:"category"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Requirement    string       `json:"requirement"`
	Implementation string       `json:"implementation"`
	Status         Status       `json:"status"`
	Evidence       []string     `json:"evidence"`
	Priority       Priority     `json:"priority"`
	Remediation    *Remediation `json:"remediation,omitempty"`
	Checks         []string     `json:"checks,omitempty"`
	LastAssessment time.Time    `json:"last_assessment"`
	NextAssessment time.Time    `json:"next_assessment"`
	Responsible    string       `json:"responsible"`
}

func (c *Control) Clone() *Control {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Evidence = slices.Clone(c.Evidence)
	cp.Checks = slices.Clone(c.Checks)
	if c.Remediation != nil {
		r := *c.Remediation
		r.Actions = slices.Clone(c.Remediation.Actions)
		cp.Remediation = &r
	}
	return &cp
}

// Recommendation is the suggested next step for a control that is not
// compliant.
func (c *Control) Recommendation() string {
	switch c.Status {
	case StatusNonCompliant:
		return "Implement immediately: " + c.Requirement
	case StatusPartial:
		return "Complete the implementation: " + c.Requirement
	case StatusNotApplicable:
		return "Confirm the control does not apply"
	}
	return "Review the control status"
}

// Score tallies controls by status. Value is (compliant + partial/2) over
// the applicable controls, as a percentage.
type Score struct {
	Total         int     `json:"total"`
	Compliant     int     `json:"compliant"`
	NonCompliant  int     `json:"non_compliant"`
	Partial       int     `json:"partial"`
	NotApplicable int     `json:"not_applicable"`
	Value         float64 `json:"score"`
}

func (s *Score) Add(status Status) {
	s.Total++
	switch status {
	case StatusCompliant:
		s.Compliant++
	case StatusNonCompliant:
		s.NonCompliant++
	case StatusPartial:
		s.Partial++
	case StatusNotApplicable:
		s.NotApplicable++
	}
}

// Compute sets Value from the tallies. No applicable control scores 0.
func (s *Score) Compute() {
	applicable := s.Total - s.NotApplicable
	if applicable <= 0 {
		s.Value = 0
		return
	}
	s.Value = (float64(s.Compliant) + 0.5*float64(s.Partial)) / float64(applicable) * 100
}

type Finding struct {
	ControlID   string       `json:"control_id"`
	Title       string       `json:"title"`
	Standard    string       `json:"standard"`
	Requirement string       `json:"requirement"`
	Remediation *Remediation `json:"remediation,omitempty"`
}

type Recommendation struct {
	ControlID      string   `json:"control_id"`
	Title          string   `json:"title"`
	Priority       Priority `json:"priority"`
	Recommendation string   `json:"recommendation"`
}

// Assessment is the outcome of one compliance validation run.
type Assessment struct {
	ID               string           `json:"id"`
	Timestamp        time.Time        `json:"timestamp"`
	Assessor         string           `json:"assessor"`
	Overall          Score            `json:"overall"`
	ByStandard       map[string]Score `json:"by_standard"`
	CriticalFindings []Finding        `json:"critical_findings"`
	Recommendations  []Recommendation `json:"recommendations"`
}

func (a *Assessment) Clone() *Assessment {
	if a == nil {
		return nil
	}
	cp := *a
	cp.ByStandard = maps.Clone(a.ByStandard)
	cp.CriticalFindings = slices.Clone(a.CriticalFindings)
	cp.Recommendations = slices.Clone(a.Recommendations)
	return &cp
}

type EvidenceRef struct {
	ControlID string `json:"control_id"`
	Evidence  string `json:"evidence"`
}

// Report covers one standard over the review period.
type Report struct {
	ID               string           `json:"id"`
	Standard         string           `json:"standard"`
	GeneratedAt      time.Time        `json:"generated_at"`
	PeriodFrom       time.Time        `json:"period_from"`
	PeriodTo         time.Time        `json:"period_to"`
	Score            Score            `json:"score"`
	CriticalFindings []Finding        `json:"critical_findings"`
	Recommendations  []Recommendation `json:"recommendations"`
	Evidence         []EvidenceRef    `json:"evidence"`
	NextAssessment   time.Time        `json:"next_assessment"`
}

func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	cp := *r
	cp.CriticalFindings = slices.Clone(r.CriticalFindings)
	cp.Recommendations = slices.Clone(r.Recommendations)
	cp.Evidence = slices.Clone(r.Evidence)
	return &cp
}

// Metrics counts the catalog by standard, status and priority.
type Metrics struct {
	TotalControls int              `json:"total_controls"`
	ByStandard    map[string]int   `json:"by_standard"`
	ByStatus      map[Status]int   `json:"by_status"`
	ByPriority    map[Priority]int `json:"by_priority"`
}
