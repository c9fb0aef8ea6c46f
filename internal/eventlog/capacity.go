package eventlog

import (
	"fmt"
	"strings"

	"github.com/psentry/psentry/internal/report"
)

// Capacity thresholds. A circular log above fillWarnPercent is already
// overwriting the window's oldest events; a log under emptyWarnPercent that
// still reports records usually means it was recently cleared or resized.
const (
	fillWarnPercent  = 90.0
	emptyWarnPercent = 5.0
)

// EvaluateLogCapacity warns when the evidence window itself is compromised:
// a disabled log, a circular log running full, or a suspiciously empty one.
func EvaluateLogCapacity(logs []LogInfo) []report.Finding {
	var findings []report.Finding
	for _, log := range logs {
		if !log.IsEnabled {
			findings = append(findings, report.Finding{
				ID:          "EVT-101",
				CheckID:     "security_events",
				Severity:    report.SeverityHigh,
				Title:       fmt.Sprintf("Event log %s is disabled", log.Name),
				Description: "A disabled log records nothing; every check that reads it is blind.",
				Evidence:    fmt.Sprintf("%s enabled=false mode=%s", log.Name, log.LogMode),
				ATTACK:      []string{"T1562.002"},
				Remediation: "Re-enable the log and investigate when and by whom it was turned off.",
			})
			continue
		}

		if strings.EqualFold(log.LogMode, "Circular") && log.FillPercent >= fillWarnPercent {
			findings = append(findings, report.Finding{
				ID:          "EVT-102",
				CheckID:     "security_events",
				Severity:    report.SeverityHigh,
				Title:       fmt.Sprintf("Event log %s is overwriting its oldest events", log.Name),
				Description: "The log runs in circular mode near capacity, so the earliest part of the lookback window is already gone.",
				Evidence: fmt.Sprintf("%s at %.1f%% of %.0f MB, %d records",
					log.Name, log.FillPercent, log.MaxSizeMB, log.RecordCount),
				Remediation: "Increase the maximum log size or forward events to a collector.",
			})
		}

		if log.FillPercent < emptyWarnPercent && log.MaxSizeMB > 0 {
			sev := report.SeverityMedium
			desc := "The log is nearly empty, which on an active host usually means it was recently cleared."
			if log.RecordCount == 0 {
				sev = report.SeverityHigh
				desc = "The log contains no records at all."
			}
			findings = append(findings, report.Finding{
				ID:          "EVT-103",
				CheckID:     "security_events",
				Severity:    sev,
				Title:       fmt.Sprintf("Event log %s is suspiciously empty", log.Name),
				Description: desc,
				Evidence: fmt.Sprintf("%s at %.1f%% of %.0f MB, %d records",
					log.Name, log.FillPercent, log.MaxSizeMB, log.RecordCount),
				ATTACK:      []string{"T1070.001"},
				Remediation: "Cross-check with event 1102 and with forwarded copies of the log.",
			})
		}
	}
	return findings
}
