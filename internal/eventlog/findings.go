package eventlog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/psentry/psentry/internal/baseline"
	"github.com/psentry/psentry/internal/report"
)

// Security log event IDs this package evaluates.
const (
	idLogonSuccess       = 4624
	idLogonFailure       = 4625
	idSpecialPrivileges  = 4672
	idAuditPolicyChanged = 4719
	idAccountCreated     = 4720
	idAccountDeleted     = 4726
	idGlobalGroupAdd     = 4728
	idLocalGroupAdd      = 4732
	idUniversalGroupAdd  = 4756
	idLogCleared         = 1102
)

// A single account failing this many logons within the lookback window is
// treated as a guessing pattern rather than a typo.
const bruteForceThreshold = 10

// EvaluateSecurityEvents raises findings for audit tampering, account
// manipulation, and authentication anomalies in the collected window.
func EvaluateSecurityEvents(doc *SecurityEvents) []report.Finding {
	var findings []report.Finding

	created := make(map[string]SecurityEvent)
	deleted := make(map[string]SecurityEvent)
	failuresByUser := make(map[string][]SecurityEvent)
	successByUser := make(map[string]bool)

	for _, evt := range doc.Events {
		switch evt.EventID {
		case idLogCleared:
			findings = append(findings, report.Finding{
				ID:          "EVT-001",
				CheckID:     "security_events",
				Severity:    report.SeverityHigh,
				Title:       "Security event log was cleared",
				Description: "Event 1102 records deliberate destruction of the audit trail.",
				Evidence:    fmt.Sprintf("cleared at %s by %s", evt.TimeCreated, orUnknown(evt.SubjectUser)),
				ATTACK:      []string{"T1070.001"},
				Remediation: "Treat prior-window evidence as incomplete; pull logs from forwarding or backup.",
			})
		case idAuditPolicyChanged:
			findings = append(findings, report.Finding{
				ID:          "EVT-002",
				CheckID:     "security_events",
				Severity:    report.SeverityMedium,
				Title:       "System audit policy was changed",
				Description: "Event 4719 can indicate auditing being narrowed before an intrusion proceeds.",
				Evidence:    fmt.Sprintf("changed at %s by %s", evt.TimeCreated, orUnknown(evt.SubjectUser)),
				ATTACK:      []string{"T1562.002"},
				Remediation: "Compare the active audit policy against the organization baseline.",
			})
		case idAccountCreated:
			if name := strings.ToLower(evt.TargetUser); name != "" {
				created[name] = evt
			}
		case idAccountDeleted:
			if name := strings.ToLower(evt.TargetUser); name != "" {
				deleted[name] = evt
			}
		case idLogonFailure:
			if name := strings.ToLower(evt.TargetUser); name != "" {
				failuresByUser[name] = append(failuresByUser[name], evt)
			}
		case idLogonSuccess:
			if name := strings.ToLower(evt.TargetUser); name != "" {
				successByUser[name] = true
			}
			if f := remoteInteractiveFinding(evt); f != nil {
				findings = append(findings, *f)
			}
		}
	}

	// Group-add member names arrive as distinguished names; correlate by
	// substring against the plain account name from the creation event.
	for _, evt := range doc.Events {
		switch evt.EventID {
		case idGlobalGroupAdd, idLocalGroupAdd, idUniversalGroupAdd:
			member := strings.ToLower(evt.TargetUser)
			for name, createdEvt := range created {
				if member == "" || !strings.Contains(member, name) {
					continue
				}
				findings = append(findings, report.Finding{
					ID:          "EVT-003",
					CheckID:     "security_events",
					Severity:    report.SeverityHigh,
					Title:       "New account granted privileged group membership",
					Description: "An account created inside the lookback window was added to a security-enabled group, a common persistence move.",
					Evidence: fmt.Sprintf("%s created at %s, added to group at %s by %s",
						createdEvt.TargetUser, createdEvt.TimeCreated, evt.TimeCreated, orUnknown(evt.SubjectUser)),
					ATTACK:      []string{"T1136.001", "T1098"},
					Remediation: "Verify the account with the requester; disable it if unrecognized.",
				})
			}
		}
	}

	for name, createdEvt := range created {
		deletedEvt, ok := deleted[name]
		if !ok {
			continue
		}
		findings = append(findings, report.Finding{
			ID:          "EVT-004",
			CheckID:     "security_events",
			Severity:    report.SeverityMedium,
			Title:       "Short-lived account created and deleted",
			Description: "An account both created and deleted within the window suggests use-and-discard access.",
			Evidence: fmt.Sprintf("%s created at %s, deleted at %s",
				createdEvt.TargetUser, createdEvt.TimeCreated, deletedEvt.TimeCreated),
			ATTACK:      []string{"T1070"},
			Remediation: "Review what the account touched while it existed.",
		})
	}

	for name, failures := range failuresByUser {
		if len(failures) < bruteForceThreshold {
			continue
		}
		sev := report.SeverityMedium
		title := "Password guessing pattern against one account"
		if successByUser[name] {
			sev = report.SeverityHigh
			title = "Password guessing followed by successful logon"
		}
		findings = append(findings, report.Finding{
			ID:          "EVT-005",
			CheckID:     "security_events",
			Severity:    sev,
			Title:       title,
			Description: fmt.Sprintf("%d failed logons for the same account within the window.", len(failures)),
			Evidence:    fmt.Sprintf("account %s, sources %s", failures[0].TargetUser, joinSources(failures, 3)),
			ATTACK:      []string{"T1110"},
			Remediation: "Lock the account, reset credentials, and review the source hosts.",
		})
	}

	return findings
}

func remoteInteractiveFinding(evt SecurityEvent) *report.Finding {
	// Logon type 10 is RDP. Sources inside the known ranges are routine.
	if evt.LogonType != 10 {
		return nil
	}
	ip := strings.TrimSpace(evt.SourceIP)
	if ip == "" || ip == "-" || baseline.IsKnownIP(ip) {
		return nil
	}
	return &report.Finding{
		ID:          "EVT-006",
		CheckID:     "security_events",
		Severity:    report.SeverityMedium,
		Title:       "Remote desktop logon from outside known ranges",
		Description: "An interactive RDP session originated from an address not in the known-network baseline.",
		Evidence:    fmt.Sprintf("%s logged on from %s at %s", orUnknown(evt.TargetUser), ip, evt.TimeCreated),
		ATTACK:      []string{"T1021.001"},
		Remediation: "Confirm the session with the account owner; check for follow-on activity.",
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(unknown)"
	}
	return s
}

func joinSources(events []SecurityEvent, max int) string {
	seen := make(map[string]bool)
	var ips []string
	for _, evt := range events {
		ip := strings.TrimSpace(evt.SourceIP)
		if ip == "" || ip == "-" || seen[ip] {
			continue
		}
		seen[ip] = true
		ips = append(ips, ip)
	}
	if len(ips) == 0 {
		return "(none recorded)"
	}
	sort.Strings(ips)
	if len(ips) > max {
		ips = append(ips[:max], fmt.Sprintf("and %d more", len(ips)-max))
	}
	return strings.Join(ips, ", ")
}

// Friendly labels for the logon type codes that appear in 4624/4625.
var logonTypeNames = map[int]string{
	2:  "interactive",
	3:  "network",
	4:  "batch",
	5:  "service",
	7:  "unlock",
	8:  "network_cleartext",
	9:  "new_credentials",
	10: "remote_interactive",
	11: "cached_interactive",
}

// LogonSummary condenses the authentication traffic for the report header.
type LogonSummary struct {
	Successes       int            `json:"successes"`
	Failures        int            `json:"failures"`
	UniqueUsers     int            `json:"unique_users"`
	ByLogonType     map[string]int `json:"by_logon_type,omitempty"`
	ExternalSources []string       `json:"external_sources,omitempty"`
}

// SummarizeLogons tallies 4624/4625 traffic. ExternalSources lists logon
// origins outside the known-network baseline.
func SummarizeLogons(doc *SecurityEvents) LogonSummary {
	summary := LogonSummary{ByLogonType: make(map[string]int)}
	users := make(map[string]bool)
	external := make(map[string]bool)

	for _, evt := range doc.Events {
		if evt.EventID != idLogonSuccess && evt.EventID != idLogonFailure {
			continue
		}
		if evt.EventID == idLogonSuccess {
			summary.Successes++
		} else {
			summary.Failures++
		}
		if name := strings.ToLower(evt.TargetUser); name != "" {
			users[name] = true
		}
		label, ok := logonTypeNames[evt.LogonType]
		if !ok {
			label = fmt.Sprintf("type_%d", evt.LogonType)
		}
		summary.ByLogonType[label]++

		ip := strings.TrimSpace(evt.SourceIP)
		if ip != "" && ip != "-" && !baseline.IsKnownIP(ip) {
			external[ip] = true
		}
	}

	summary.UniqueUsers = len(users)
	for ip := range external {
		summary.ExternalSources = append(summary.ExternalSources, ip)
	}
	sort.Strings(summary.ExternalSources)
	return summary
}
