package policy

import (
	"github.com/psentry/psentry/internal/report"
)

// HardeningState holds the registry-backed hardening switches read natively
// rather than through the collection scripts. Collected is false when the
// probes did not run (non-Windows host or fixture replay).
type HardeningState struct {
	Collected             bool                  `json:"collected"`
	LSAProtection         bool                  `json:"lsa_protection"`
	UACEnabled            bool                  `json:"uac_enabled"`
	RDPNLARequired        bool                  `json:"rdp_nla_required"`
	AlwaysInstallElevated AlwaysInstallElevated `json:"always_install_elevated"`
	// ConstrainedLanguage reports the system-wide __PSLockdownPolicy
	// enforcement. The posture check only sees its own session's language
	// mode, which says nothing about other users.
	ConstrainedLanguage bool `json:"constrained_language"`
}

// AlwaysInstallElevated mirrors the per-hive Windows Installer policy bits.
// Only both together grant the SYSTEM-MSI escalation.
type AlwaysInstallElevated struct {
	Machine bool `json:"machine"`
	User    bool `json:"user"`
}

// EvaluateHardening raises findings on the native hardening probes.
func EvaluateHardening(state HardeningState) []report.Finding {
	if !state.Collected {
		return nil
	}
	var findings []report.Finding

	if state.AlwaysInstallElevated.Machine && state.AlwaysInstallElevated.User {
		findings = append(findings, report.Finding{
			ID:          "POL-301",
			CheckID:     "powershell_security",
			Severity:    report.SeverityCritical,
			Title:       "AlwaysInstallElevated is enabled in both hives",
			Description: "Any user can install an MSI as SYSTEM; this is a textbook local privilege escalation.",
			Evidence:    "HKLM and HKCU Installer\\AlwaysInstallElevated = 1",
			ATTACK:      []string{"T1548.002"},
			Remediation: "Clear the policy in both hives via GPO.",
		})
	}
	if !state.UACEnabled {
		findings = append(findings, report.Finding{
			ID:          "POL-302",
			CheckID:     "powershell_security",
			Severity:    report.SeverityHigh,
			Title:       "UAC is disabled",
			Description: "With EnableLUA=0 every process of an administrator runs fully elevated.",
			Evidence:    "EnableLUA=0",
			ATTACK:      []string{"T1548.002"},
			Remediation: "Re-enable UAC and reboot.",
		})
	}
	if !state.LSAProtection {
		findings = append(findings, report.Finding{
			ID:          "POL-303",
			CheckID:     "powershell_security",
			Severity:    report.SeverityMedium,
			Title:       "LSASS does not run as a protected process",
			Description: "Without RunAsPPL, credential dumping tools can open LSASS with full access.",
			Evidence:    "Lsa\\RunAsPPL not set",
			ATTACK:      []string{"T1003.001"},
			Remediation: "Set RunAsPPL=1 (with UEFI lock where supported).",
		})
	}
	if !state.RDPNLARequired {
		findings = append(findings, report.Finding{
			ID:          "POL-304",
			CheckID:     "powershell_security",
			Severity:    report.SeverityMedium,
			Title:       "RDP does not require Network Level Authentication",
			Description: "Without NLA the full logon surface is reachable pre-authentication.",
			Evidence:    "RDP-Tcp UserAuthentication=0",
			ATTACK:      []string{"T1021.001"},
			Remediation: "Require NLA on the RDP listener.",
		})
	}
	if !state.ConstrainedLanguage {
		findings = append(findings, report.Finding{
			ID:          "POL-305",
			CheckID:     "powershell_security",
			Severity:    report.SeverityLow,
			Title:       "PowerShell runs unconstrained for all users",
			Description: "No system-wide lockdown policy is set, so every interactive user gets FullLanguage PowerShell with reflection and Add-Type available.",
			Evidence:    "__PSLockdownPolicy not set",
			ATTACK:      []string{"T1059.001"},
			Remediation: "Deploy WDAC or AppLocker script enforcement; ConstrainedLanguage follows automatically.",
		})
	}
	return findings
}
