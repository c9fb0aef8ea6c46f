package accounts

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/psentry/psentry/internal/baseline"
	"github.com/psentry/psentry/internal/report"
)

const (
	// More members than this in BUILTIN\Administrators is treated as an
	// unmanaged admin surface rather than deliberate delegation.
	adminGroupThreshold = 5

	// A privileged account that has not logged on for this long is a
	// standing credential nobody is watching.
	staleLogonDays = 90
)

// EvaluateLocal raises findings on the local account inventory. Accounts
// registered in the known-accounts baseline are left out of the aggregates.
func EvaluateLocal(doc *LocalAccounts) []report.Finding {
	var findings []report.Finding

	var neverExpires, noPassword []string
	for _, acct := range doc.Accounts {
		if acct.IsGuest() && acct.Enabled {
			findings = append(findings, report.Finding{
				ID:          "ACC-001",
				CheckID:     "local_accounts",
				Severity:    report.SeverityHigh,
				Title:       "Guest account is enabled",
				Description: "The built-in Guest account allows anonymous-style access and is disabled on hardened systems.",
				Evidence:    fmt.Sprintf("%s (%s) enabled", acct.Name, acct.SID),
				ATTACK:      []string{"T1078.001"},
				Remediation: "Disable the Guest account.",
			})
		}
		if baseline.IsKnownAccount(acct.Name) {
			continue
		}
		if acct.Enabled && !acct.PasswordRequired {
			noPassword = append(noPassword, acct.Name)
		}
		if acct.Enabled && acct.PasswordNeverExpires && !acct.IsBuiltinAdministrator() {
			neverExpires = append(neverExpires, acct.Name)
		}
	}

	if len(noPassword) > 0 {
		findings = append(findings, report.Finding{
			ID:          "ACC-002",
			CheckID:     "local_accounts",
			Severity:    report.SeverityHigh,
			Title:       "Enabled accounts with no password requirement",
			Description: "Accounts flagged PasswordRequired=false can have blank passwords.",
			Evidence:    nameList(noPassword, 4),
			ATTACK:      []string{"T1078.003"},
			Remediation: "Set passwords and enforce the password-required flag.",
		})
	}
	if len(neverExpires) > 0 {
		findings = append(findings, report.Finding{
			ID:          "ACC-003",
			CheckID:     "local_accounts",
			Severity:    report.SeverityMedium,
			Title:       "Local accounts with non-expiring passwords",
			Description: "Passwords that never expire outlive every rotation policy; service accounts belong in the baseline instead.",
			Evidence:    nameList(neverExpires, 4),
			Remediation: "Expire the passwords or register intentional service accounts in the baseline config.",
		})
	}

	if len(doc.Administrators) > adminGroupThreshold {
		var names []string
		for _, m := range doc.Administrators {
			names = append(names, m.Name)
		}
		findings = append(findings, report.Finding{
			ID:          "ACC-004",
			CheckID:     "local_accounts",
			Severity:    report.SeverityMedium,
			Title:       "Administrators group is unusually large",
			Description: fmt.Sprintf("%d members sit in BUILTIN\\Administrators; each is a full-takeover path.", len(doc.Administrators)),
			Evidence:    nameList(names, 6),
			ATTACK:      []string{"T1078"},
			Remediation: "Move day-to-day users out of Administrators; prefer constrained endpoints for support work.",
		})
	}

	return findings
}

// EvaluateAD raises findings on the domain exposure snapshot. now anchors
// the staleness checks. A workgroup document produces no findings.
func EvaluateAD(doc *ADAccounts, now time.Time) []report.Finding {
	if !doc.DomainJoined {
		return nil
	}

	var findings []report.Finding
	var roastable, stalePrivileged, neverExpiresPriv, orphanedAdminCount, disabledPrivileged []string

	staleBefore := now.AddDate(0, 0, -staleLogonDays)
	for _, acct := range doc.Accounts {
		if baseline.IsKnownAccount(acct.SamAccountName) {
			continue
		}

		if acct.Kerberoastable() {
			roastable = append(roastable, fmt.Sprintf("%s (%s)", acct.SamAccountName, firstSPN(acct.SPNs)))
		}

		if acct.Privileged() {
			if !acct.Enabled {
				disabledPrivileged = append(disabledPrivileged, acct.SamAccountName)
			}
			if acct.PasswordNeverExpires {
				neverExpiresPriv = append(neverExpiresPriv, acct.SamAccountName)
			}
			if lastLogon, ok := parseTime(acct.LastLogon); ok && lastLogon.Before(staleBefore) && acct.Enabled {
				stalePrivileged = append(stalePrivileged,
					fmt.Sprintf("%s (last logon %s)", acct.SamAccountName, lastLogon.Format("2006-01-02")))
			}
		} else if acct.AdminCount == 1 {
			orphanedAdminCount = append(orphanedAdminCount, acct.SamAccountName)
		}
	}

	if len(roastable) > 0 {
		findings = append(findings, report.Finding{
			ID:          "ACC-101",
			CheckID:     "ad_accounts",
			Severity:    report.SeverityHigh,
			Title:       "Kerberoastable service accounts",
			Description: "Enabled accounts with SPNs let any domain user request tickets encrypted with the account password and crack them offline.",
			Evidence:    nameList(roastable, 4),
			ATTACK:      []string{"T1558.003"},
			Remediation: "Move services to gMSAs or set long random passwords on these accounts.",
		})
	}
	if len(stalePrivileged) > 0 {
		findings = append(findings, report.Finding{
			ID:          "ACC-102",
			CheckID:     "ad_accounts",
			Severity:    report.SeverityMedium,
			Title:       "Privileged accounts with stale logons",
			Description: fmt.Sprintf("Privileged accounts unused for over %d days are standing credentials nobody would miss.", staleLogonDays),
			Evidence:    nameList(stalePrivileged, 4),
			ATTACK:      []string{"T1078.002"},
			Remediation: "Disable unused privileged accounts.",
		})
	}
	if len(neverExpiresPriv) > 0 {
		findings = append(findings, report.Finding{
			ID:          "ACC-103",
			CheckID:     "ad_accounts",
			Severity:    report.SeverityHigh,
			Title:       "Privileged accounts with non-expiring passwords",
			Description: "A privileged password that never rotates keeps every past compromise alive.",
			Evidence:    nameList(neverExpiresPriv, 4),
			ATTACK:      []string{"T1078.002"},
			Remediation: "Enforce rotation for privileged accounts.",
		})
	}
	if len(orphanedAdminCount) > 0 {
		findings = append(findings, report.Finding{
			ID:          "ACC-104",
			CheckID:     "ad_accounts",
			Severity:    report.SeverityLow,
			Title:       "Accounts with leftover adminCount markers",
			Description: "adminCount=1 outside any privileged group usually means past membership; these accounts keep a protected ACL that hides later tampering.",
			Evidence:    nameList(orphanedAdminCount, 4),
			Remediation: "Clear adminCount and re-inherit ACLs for accounts that left privileged groups.",
		})
	}
	if len(disabledPrivileged) > 0 {
		findings = append(findings, report.Finding{
			ID:          "ACC-105",
			CheckID:     "ad_accounts",
			Severity:    report.SeverityLow,
			Title:       "Disabled accounts still in privileged groups",
			Description: "Re-enabling one of these silently restores full privilege.",
			Evidence:    nameList(disabledPrivileged, 4),
			Remediation: "Remove disabled accounts from privileged groups.",
		})
	}

	return findings
}

func firstSPN(spns []string) string {
	if len(spns) == 0 {
		return "no spn"
	}
	return spns[0]
}

func nameList(names []string, max int) string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	if len(sorted) > max {
		rest := len(sorted) - max
		sorted = append(sorted[:max], fmt.Sprintf("and %d more", rest))
	}
	return strings.Join(sorted, ", ")
}
