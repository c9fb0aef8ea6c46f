package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// consoleMaxFindings caps the findings table on the console. The full list
// is always in report.html and report.json.
const consoleMaxFindings = 15

// Summary prints the scan outcome to w in a form that fits a terminal.
func Summary(w io.Writer, data ReportData) {
	fmt.Fprintf(w, "\nHost %s (%s) — verdict: %s\n", data.Hostname, data.OS, data.Assessment.Verdict)
	c := data.Assessment.Counts
	fmt.Fprintf(w, "Findings: %d critical, %d high, %d medium, %d low, %d info",
		c.Critical, c.High, c.Medium, c.Low, c.Info)
	if n := data.SuppressedCount(); n > 0 {
		fmt.Fprintf(w, " (%d suppressed by baseline)", n)
	}
	fmt.Fprintln(w)

	for _, reason := range data.Assessment.Reasons {
		fmt.Fprintf(w, "  - %s\n", reason)
	}

	visible := visibleFindings(data.Findings, consoleMaxFindings)
	if len(visible) > 0 {
		fmt.Fprintln(w)
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Severity", "ID", "Check", "Finding"})
		table.SetBorder(false)
		table.SetAutoWrapText(false)
		for _, f := range visible {
			table.Append([]string{f.Severity.String(), f.ID, f.CheckID, f.Title})
		}
		table.Render()
		if hidden := countVisible(data.Findings) - len(visible); hidden > 0 {
			fmt.Fprintf(w, "  ... and %d more in the full report\n", hidden)
		}
	}

	if data.Scan != nil && len(data.Scan.Hits) > 0 {
		fmt.Fprintln(w)
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Severity", "Rule", "Category", "Hits"})
		table.SetBorder(false)
		table.SetAutoWrapText(false)
		for _, h := range data.Scan.Hits {
			table.Append([]string{
				h.Rule.Severity.String(), h.Rule.ID, h.Rule.Category, strconv.Itoa(h.Count),
			})
		}
		table.Render()
	}

	if len(data.SigmaMatches) > 0 {
		fmt.Fprintf(w, "\nSigma: %d rule match(es)\n", len(data.SigmaMatches))
		for _, m := range data.SigmaMatches {
			fmt.Fprintf(w, "  [%s] %s (%s, %d event(s))\n", m.Level, m.RuleTitle, m.CheckID, m.Count)
		}
	}

	if len(data.Gaps) > 0 {
		fmt.Fprintf(w, "\nEvidence gaps:\n")
		for _, g := range data.Gaps {
			fmt.Fprintf(w, "  %s (%s): %s\n", g.CheckID, g.Kind, g.Impact)
		}
	}
}

// visibleFindings returns the first max non-suppressed findings, assuming
// the slice is already sorted.
func visibleFindings(findings []Finding, max int) []Finding {
	out := make([]Finding, 0, max)
	for _, f := range findings {
		if f.Suppressed {
			continue
		}
		out = append(out, f)
		if len(out) == max {
			break
		}
	}
	return out
}

func countVisible(findings []Finding) int {
	n := 0
	for _, f := range findings {
		if !f.Suppressed {
			n++
		}
	}
	return n
}
