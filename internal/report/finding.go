// Package report assembles findings, the run verdict, and the rendered
// HTML/JSON/console outputs.
package report

import (
	"sort"

	"github.com/psentry/psentry/internal/threat"
)

// Severity aliases the threat severity scale so packages that emit findings
// work with a single name for the concept.
type Severity = threat.Severity

const (
	SeverityInfo     = threat.SeverityInfo
	SeverityLow      = threat.SeverityLow
	SeverityMedium   = threat.SeverityMedium
	SeverityHigh     = threat.SeverityHigh
	SeverityCritical = threat.SeverityCritical
)

// Finding is one issue raised while evaluating a check's output.
type Finding struct {
	ID          string   `json:"id"`
	CheckID     string   `json:"check_id"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Evidence    string   `json:"evidence,omitempty"`
	ATTACK      []string `json:"attack,omitempty"`
	Remediation string   `json:"remediation,omitempty"`
	Suppressed  bool     `json:"suppressed,omitempty"`
}

// Sort orders findings by severity (worst first), then check ID, then ID.
func Sort(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return findings[i].Severity > findings[j].Severity
		}
		if findings[i].CheckID != findings[j].CheckID {
			return findings[i].CheckID < findings[j].CheckID
		}
		return findings[i].ID < findings[j].ID
	})
}

// FilterMinSeverity drops findings below min. Suppressed findings are kept
// regardless of severity so the report can show what the baseline hid.
func FilterMinSeverity(findings []Finding, min Severity) []Finding {
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if f.Severity >= min || f.Suppressed {
			out = append(out, f)
		}
	}
	return out
}

// CountBySeverity tallies unsuppressed findings.
func CountBySeverity(findings []Finding) threat.SeverityCounts {
	var counts threat.SeverityCounts
	for _, f := range findings {
		if !f.Suppressed {
			counts.Add(f.Severity)
		}
	}
	return counts
}
