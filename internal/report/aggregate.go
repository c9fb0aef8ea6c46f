package report

import (
	"fmt"

	"github.com/psentry/psentry/internal/threat"
)

// Verdict is the triage outcome for a run.
type Verdict string

const (
	// VerdictAlert means the host needs investigation now.
	VerdictAlert Verdict = "alert"
	// VerdictReview means something is off but not conclusively hostile.
	VerdictReview Verdict = "review"
	// VerdictClean means nothing above the noise floor was found.
	VerdictClean Verdict = "clean"
)

// Assessment is the rolled-up judgment for one run.
type Assessment struct {
	Verdict    Verdict               `json:"verdict"`
	Incomplete bool                  `json:"incomplete"`
	Reasons    []string              `json:"reasons,omitempty"`
	Counts     threat.SeverityCounts `json:"severity_counts"`
}

// Assess combines check findings, the script scan, and evidence gaps into a
// verdict. Scan counts and finding counts are merged; suppressed entries were
// already excluded from both. A single high with missing evidence escalates
// to alert: the gap may be hiding the confirmation.
func Assess(findings []Finding, scan *threat.ScanReport, gaps []Gap) Assessment {
	counts := CountBySeverity(findings)
	if scan != nil {
		counts.Critical += scan.Counts.Critical
		counts.High += scan.Counts.High
		counts.Medium += scan.Counts.Medium
		counts.Low += scan.Counts.Low
		counts.Info += scan.Counts.Info
	}

	a := Assessment{
		Verdict:    VerdictClean,
		Incomplete: len(gaps) > 0,
		Counts:     counts,
	}

	switch {
	case counts.Critical > 0:
		a.Verdict = VerdictAlert
		a.Reasons = append(a.Reasons, fmt.Sprintf("%d critical indicator(s)", counts.Critical))
	case counts.High >= 2:
		a.Verdict = VerdictAlert
		a.Reasons = append(a.Reasons, fmt.Sprintf("%d high indicators", counts.High))
	case counts.High == 1 && a.Incomplete:
		a.Verdict = VerdictAlert
		a.Reasons = append(a.Reasons, "a high indicator with incomplete evidence")
	case counts.High == 1:
		a.Verdict = VerdictReview
		a.Reasons = append(a.Reasons, "1 high indicator")
	case counts.Medium > 0:
		a.Verdict = VerdictReview
		a.Reasons = append(a.Reasons, fmt.Sprintf("%d medium indicator(s)", counts.Medium))
	case counts.Low >= 5:
		a.Verdict = VerdictReview
		a.Reasons = append(a.Reasons, fmt.Sprintf("unusual volume of low indicators (%d)", counts.Low))
	}

	if a.Verdict == VerdictClean && a.Incomplete {
		a.Reasons = append(a.Reasons, fmt.Sprintf("%d check(s) produced no evidence", len(gaps)))
	}
	return a
}
