// Package catalog provides the embedded control catalog, one YAML file per
// standard.
package catalog

import (
	"embed"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"bastion/internal/compliance/models"
)

//go:embed standards/*.yaml
var standardFiles embed.FS

// Check names understood by the assessment.
const (
	CheckMFAPrivileged     = "mfa_privileged"
	CheckEncryptionEnabled = "encryption_enabled"
	CheckAuditSigned       = "audit_signed"
	CheckAuditChainIntact  = "audit_chain_intact"
	CheckAlertingEnabled   = "alerting_configured"
)

var knownChecks = []string{
	CheckMFAPrivileged,
	CheckEncryptionEnabled,
	CheckAuditSigned,
	CheckAuditChainIntact,
	CheckAlertingEnabled,
}

// Standard is one embedded standard with its controls.
type Standard struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Responsible string        `yaml:"responsible"`
	ReviewDays  int           `yaml:"review_days"`
	Controls    []controlSpec `yaml:"controls"`
}

// ReviewInterval is the time between two assessments of the standard.
func (s Standard) ReviewInterval() time.Duration {
	return time.Duration(s.ReviewDays) * 24 * time.Hour
}

type controlSpec struct {
	ID             string           `yaml:"id"`
	Category       string           `yaml:"category"`
	Title          string           `yaml:"title"`
	Description    string           `yaml:"description"`
	Requirement    string           `yaml:"requirement"`
	Implementation string           `yaml:"implementation"`
	Status         string           `yaml:"status"`
	Priority       string           `yaml:"priority"`
	Evidence       []string         `yaml:"evidence"`
	Checks         []string         `yaml:"checks"`
	Remediation    *remediationSpec `yaml:"remediation"`
}

type remediationSpec struct {
	Actions      []string `yaml:"actions"`
	DeadlineDays int      `yaml:"deadline_days"`
	Responsible  string   `yaml:"responsible"`
	Status       string   `yaml:"status"`
}

// Standards parses and validates every embedded standard, keyed by ID. An
// error here means the embedded catalog itself is broken.
func Standards() (map[string]Standard, error) {
	entries, err := standardFiles.ReadDir("standards")
	if err != nil {
		return nil, fmt.Errorf("reading embedded standards: %w", err)
	}
	out := make(map[string]Standard, len(entries))
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		path := "standards/" + entry.Name()
		data, err := standardFiles.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading embedded standard %s: %w", path, err)
		}
		var std Standard
		if err := yaml.Unmarshal(data, &std); err != nil {
			return nil, fmt.Errorf("parsing embedded standard %s: %w", path, err)
		}
		if err := validate(std); err != nil {
			return nil, fmt.Errorf("embedded standard %s: %w", path, err)
		}
		for _, c := range std.Controls {
			if other, dup := seen[c.ID]; dup {
				return nil, fmt.Errorf("control %s defined in both %s and %s", c.ID, other, std.ID)
			}
			seen[c.ID] = std.ID
		}
		out[std.ID] = std
	}
	return out, nil
}

func validate(std Standard) error {
	if std.ID == "" || std.ReviewDays <= 0 {
		return fmt.Errorf("standard needs an id and a positive review_days")
	}
	for _, c := range std.Controls {
		if c.ID == "" {
			return fmt.Errorf("control without id")
		}
		if !models.Status(c.Status).IsValid() {
			return fmt.Errorf("control %s: unknown status %q", c.ID, c.Status)
		}
		if !models.Priority(c.Priority).IsValid() {
			return fmt.Errorf("control %s: unknown priority %q", c.ID, c.Priority)
		}
		for _, check := range c.Checks {
			if !slices.Contains(knownChecks, check) {
				return fmt.Errorf("control %s: unknown check %q", c.ID, check)
			}
		}
	}
	return nil
}

// Instantiate builds the controls of s as assessed at now.
func (s Standard) Instantiate(now time.Time) []*models.Control {
	out := make([]*models.Control, 0, len(s.Controls))
	for _, c := range s.Controls {
		ctrl := &models.Control{
			ID:             c.ID,
			Standard:       s.ID,
			Category:       c.Category,
			Title:          c.Title,
			Description:    c.Description,
			Requirement:    c.Requirement,
			Implementation: c.Implementation,
			Status:         models.Status(c.Status),
			Priority:       models.Priority(c.Priority),
			Evidence:       slices.Clone(c.Evidence),
			Checks:         slices.Clone(c.Checks),
			LastAssessment: now,
			NextAssessment: now.Add(s.ReviewInterval()),
			Responsible:    s.Responsible,
		}
		if r := c.Remediation; r != nil {
			ctrl.Remediation = &models.Remediation{
				Actions:     slices.Clone(r.Actions),
				Deadline:    now.AddDate(0, 0, r.DeadlineDays),
				Responsible: r.Responsible,
				Status:      r.Status,
			}
		}
		out = append(out, ctrl)
	}
	return out
}
