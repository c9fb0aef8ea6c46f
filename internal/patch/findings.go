package patch

import (
	"fmt"
	"time"

	"github.com/psentry/psentry/internal/report"
)

// Evaluate raises findings on the patch state. maxAgeDays is the staleness
// threshold from config; now anchors the age calculation.
func Evaluate(inv *Inventory, maxAgeDays int, now time.Time) []report.Finding {
	var findings []report.Finding

	newest, ok := inv.Newest()
	switch {
	case !ok:
		findings = append(findings, report.Finding{
			ID:          "PATCH-001",
			CheckID:     "hotfixes",
			Severity:    report.SeverityMedium,
			Title:       "No dated updates in the hotfix inventory",
			Description: "Get-HotFix returned nothing with an install date; either the host never updated or the servicing store is damaged.",
			Evidence:    fmt.Sprintf("%d inventory entries, build %s", len(inv.Hotfixes), inv.OS.Build()),
			Remediation: "Check Windows Update health and servicing logs on the host.",
		})
	default:
		age := now.Sub(newest.Time())
		if ageDays := int(age.Hours() / 24); ageDays > maxAgeDays {
			findings = append(findings, report.Finding{
				ID:       "PATCH-002",
				CheckID:  "hotfixes",
				Severity: report.SeverityHigh,
				Title:    "Host has not been patched recently",
				Description: fmt.Sprintf("The newest update is %d days old (threshold %d); publicly known exploits likely apply.",
					ageDays, maxAgeDays),
				Evidence: fmt.Sprintf("%s installed %s, build %s",
					newest.HotfixID, newest.Time().Format("2006-01-02"), inv.OS.Build()),
				ATTACK:      []string{"T1190"},
				Remediation: "Bring the host current through the normal update ring.",
			})
		}
	}

	if inv.PendingReboot {
		findings = append(findings, report.Finding{
			ID:          "PATCH-003",
			CheckID:     "hotfixes",
			Severity:    report.SeverityLow,
			Title:       "Reboot pending; installed updates not yet effective",
			Description: "Updates listed as installed do not protect the host until the reboot completes.",
			Evidence:    fmt.Sprintf("reasons: %s", joinOr(inv.RebootReasons, "unspecified")),
			Remediation: "Schedule the reboot.",
		})
	}

	return findings
}

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	out := items[0]
	for _, s := range items[1:] {
		out += ", " + s
	}
	return out
}
