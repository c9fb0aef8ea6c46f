// Package policy evaluates the host's PowerShell and security policy
// posture: logging configuration, engine downgrade surface, AMSI state,
// and the natively collected account and audit policies.
package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/psentry/psentry/internal/report"
)

// ExecutionPolicy is one scope entry from Get-ExecutionPolicy -List.
type ExecutionPolicy struct {
	Scope  string `json:"scope"`
	Policy string `json:"policy"`
}

// LoggingPolicy mirrors the PowerShell logging policy registry keys.
type LoggingPolicy struct {
	ScriptBlockLogging bool   `json:"script_block_logging"`
	ModuleLogging      bool   `json:"module_logging"`
	Transcription      bool   `json:"transcription"`
	TranscriptDir      string `json:"transcript_dir"`
}

// AMSIProvider is one registered AMSI provider.
type AMSIProvider struct {
	CLSID string `json:"clsid"`
	Name  string `json:"name"`
}

// Posture is the full powershell_security check document.
type Posture struct {
	Check             string            `json:"check"`
	CollectedAt       string            `json:"collected_at"`
	Computer          string            `json:"computer"`
	PSVersion         string            `json:"ps_version"`
	LanguageMode      string            `json:"language_mode"`
	V2EnginePresent   bool              `json:"v2_engine_present"`
	ExecutionPolicies []ExecutionPolicy `json:"execution_policies"`
	Logging           LoggingPolicy     `json:"logging"`
	AMSIProviders     []AMSIProvider    `json:"amsi_providers"`
}

// ParsePosture decodes powershell_security check output.
func ParsePosture(data []byte) (*Posture, error) {
	var doc Posture
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse powershell_security output: %w", err)
	}
	if doc.Check != "powershell_security" {
		return nil, fmt.Errorf("powershell_security output carries check id %q", doc.Check)
	}
	return &doc, nil
}

// EvaluatePosture raises findings on the PowerShell hardening state.
func EvaluatePosture(p *Posture) []report.Finding {
	var findings []report.Finding

	if !p.Logging.ScriptBlockLogging {
		findings = append(findings, report.Finding{
			ID:          "POL-001",
			CheckID:     "powershell_security",
			Severity:    report.SeverityHigh,
			Title:       "Script block logging is disabled",
			Description: "Without 4104 events the scriptblock_logs check only sees what an attacker chooses to leave visible.",
			ATTACK:      []string{"T1562.002"},
			Remediation: "Enable EnableScriptBlockLogging under the PowerShell policy key via GPO.",
		})
	}
	if !p.Logging.ModuleLogging {
		findings = append(findings, report.Finding{
			ID:          "POL-002",
			CheckID:     "powershell_security",
			Severity:    report.SeverityLow,
			Title:       "Module logging is disabled",
			Description: "Module logging records pipeline execution details that script block logging misses.",
			Remediation: "Enable EnableModuleLogging with ModuleNames set to *.",
		})
	}
	switch {
	case !p.Logging.Transcription:
		findings = append(findings, report.Finding{
			ID:          "POL-003",
			CheckID:     "powershell_security",
			Severity:    report.SeverityLow,
			Title:       "Transcription is disabled",
			Description: "Over-the-shoulder transcripts are the cheapest full record of interactive sessions.",
			Remediation: "Enable transcription with an access-controlled output directory.",
		})
	case p.Logging.TranscriptDir == "":
		findings = append(findings, report.Finding{
			ID:          "POL-004",
			CheckID:     "powershell_security",
			Severity:    report.SeverityMedium,
			Title:       "Transcription lacks a protected output directory",
			Description: "Transcripts land in each user's documents folder where the session itself can delete them.",
			Remediation: "Point OutputDirectory at a write-only network share.",
		})
	}

	if p.V2EnginePresent {
		findings = append(findings, report.Finding{
			ID:          "POL-005",
			CheckID:     "powershell_security",
			Severity:    report.SeverityHigh,
			Title:       "PowerShell v2 engine is still installed",
			Description: "The v2 engine predates AMSI and script block logging; -Version 2 sidesteps both.",
			Evidence:    fmt.Sprintf("host runs PowerShell %s with the v2 engine present", p.PSVersion),
			ATTACK:      []string{"T1562.010"},
			Remediation: "Remove the MicrosoftWindowsPowerShellV2 optional feature.",
		})
	}

	if len(p.AMSIProviders) == 0 {
		findings = append(findings, report.Finding{
			ID:          "POL-006",
			CheckID:     "powershell_security",
			Severity:    report.SeverityHigh,
			Title:       "No AMSI providers are registered",
			Description: "Nothing is scanning script content at execution time; Defender or a third-party engine should register here.",
			ATTACK:      []string{"T1562.001"},
			Remediation: "Verify the antimalware product is healthy and AMSI-integrated.",
		})
	}

	findings = append(findings, evaluateExecutionPolicies(p.ExecutionPolicies)...)
	return findings
}

func evaluateExecutionPolicies(policies []ExecutionPolicy) []report.Finding {
	allUndefined := len(policies) > 0
	var permissive []string
	for _, ep := range policies {
		if !strings.EqualFold(ep.Policy, "Undefined") {
			allUndefined = false
		}
		machineScope := strings.EqualFold(ep.Scope, "MachinePolicy") || strings.EqualFold(ep.Scope, "LocalMachine")
		lax := strings.EqualFold(ep.Policy, "Bypass") || strings.EqualFold(ep.Policy, "Unrestricted")
		if machineScope && lax {
			permissive = append(permissive, fmt.Sprintf("%s=%s", ep.Scope, ep.Policy))
		}
	}

	var findings []report.Finding
	if len(permissive) > 0 {
		findings = append(findings, report.Finding{
			ID:          "POL-007",
			CheckID:     "powershell_security",
			Severity:    report.SeverityMedium,
			Title:       "Machine-wide execution policy is permissive",
			Description: "Execution policy is not a security boundary, but Bypass at machine scope also drops the accidental-execution guardrail.",
			Evidence:    strings.Join(permissive, ", "),
			Remediation: "Set the machine policy to RemoteSigned or AllSigned.",
		})
	}
	if allUndefined {
		findings = append(findings, report.Finding{
			ID:          "POL-008",
			CheckID:     "powershell_security",
			Severity:    report.SeverityLow,
			Title:       "No execution policy is configured at any scope",
			Description: "Every scope reports Undefined, so the effective policy falls back to the OS default.",
			Remediation: "Set an explicit machine-scope policy via GPO.",
		})
	}
	return findings
}
