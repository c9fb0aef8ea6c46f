package jea

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/psentry/psentry/internal/report"
)

// Endpoint is one registered session configuration as reported by the
// jea_endpoints collector.
type Endpoint struct {
	Name                string `json:"name"`
	PSVersion           string `json:"ps_version"`
	SessionType         string `json:"session_type"`
	LanguageMode        string `json:"language_mode"`
	RunAsUser           string `json:"run_as_user"`
	RunAsVirtualAccount bool   `json:"run_as_virtual_account"`
	Permission          string `json:"permission"`
}

// Custom reports whether the endpoint was registered by an administrator
// rather than shipped with Windows.
func (e Endpoint) Custom() bool {
	return !strings.HasPrefix(strings.ToLower(e.Name), "microsoft.")
}

// Endpoints is the jea_endpoints collector output.
type Endpoints struct {
	Check       string     `json:"check"`
	CollectedAt string     `json:"collected_at"`
	Computer    string     `json:"computer"`
	Endpoints   []Endpoint `json:"endpoints"`
}

// ParseEndpoints decodes jea_endpoints collector output.
func ParseEndpoints(data []byte) (*Endpoints, error) {
	var doc Endpoints
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse jea_endpoints output: %w", err)
	}
	if doc.Check != "jea_endpoints" {
		return nil, fmt.Errorf("jea_endpoints output carries check id %q", doc.Check)
	}
	return &doc, nil
}

// grant is one "<principal> <AccessAllowed|AccessDenied>" entry from a
// session configuration's Permission string.
type grant struct {
	Principal string
	Access    string
}

// parseGrants splits a Permission string like
// "BUILTIN\Administrators AccessAllowed, NT AUTHORITY\INTERACTIVE AccessAllowed".
// Principals may contain spaces, so the access type is the last token.
func parseGrants(permission string) []grant {
	var grants []grant
	for _, part := range strings.Split(permission, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.LastIndex(part, " ")
		if idx < 0 {
			continue
		}
		grants = append(grants, grant{
			Principal: strings.TrimSpace(part[:idx]),
			Access:    part[idx+1:],
		})
	}
	return grants
}

// broadPrincipal reports whether the grantee covers effectively every
// authenticated user on the network.
func broadPrincipal(principal string) bool {
	p := strings.ToLower(principal)
	switch p {
	case "everyone", "nt authority\\authenticated users", "builtin\\users":
		return true
	}
	return strings.HasSuffix(p, "\\everyone")
}

// AuditEndpoints flags registered session configurations that undermine the
// point of constrained remoting: broad ACLs, full language mode, and standing
// run-as credentials. Built-in microsoft.* endpoints are held only to the
// ACL check; their language mode and session type are fixed by Windows.
func AuditEndpoints(doc *Endpoints) []report.Finding {
	var findings []report.Finding

	for _, ep := range doc.Endpoints {
		for _, g := range parseGrants(ep.Permission) {
			if !strings.EqualFold(g.Access, "AccessAllowed") || !broadPrincipal(g.Principal) {
				continue
			}
			findings = append(findings, report.Finding{
				ID:          "JEA-001",
				CheckID:     "jea_endpoints",
				Severity:    report.SeverityHigh,
				Title:       "Session endpoint reachable by all users",
				Description: fmt.Sprintf("Endpoint %q grants %s access; any account on the network can open a session.", ep.Name, g.Principal),
				Evidence:    fmt.Sprintf("%s: %s %s", ep.Name, g.Principal, g.Access),
				ATTACK:      []string{"T1021.006"},
				Remediation: fmt.Sprintf("Set-PSSessionConfiguration -Name '%s' -ShowSecurityDescriptorUI and restrict the ACL to the intended support groups.", ep.Name),
			})
		}

		if !ep.Custom() {
			continue
		}

		if strings.EqualFold(ep.LanguageMode, "FullLanguage") {
			findings = append(findings, report.Finding{
				ID:          "JEA-002",
				CheckID:     "jea_endpoints",
				Severity:    report.SeverityMedium,
				Title:       "Custom endpoint runs full language mode",
				Description: fmt.Sprintf("Endpoint %q gives connecting users the complete PowerShell language, so its role constraints can be scripted around.", ep.Name),
				Evidence:    fmt.Sprintf("%s: LanguageMode=%s", ep.Name, ep.LanguageMode),
				Remediation: "Regenerate the session configuration with LanguageMode 'NoLanguage' and expose needed operations as role capability functions.",
			})
		}

		if ep.RunAsUser != "" {
			findings = append(findings, report.Finding{
				ID:          "JEA-003",
				CheckID:     "jea_endpoints",
				Severity:    report.SeverityMedium,
				Title:       "Custom endpoint uses a standing run-as credential",
				Description: fmt.Sprintf("Endpoint %q runs sessions as fixed account %q; the credential is stored with the configuration and shared by every caller.", ep.Name, ep.RunAsUser),
				Evidence:    fmt.Sprintf("%s: RunAsUser=%s", ep.Name, ep.RunAsUser),
				Remediation: "Switch the endpoint to RunAsVirtualAccount so each session gets a transient local identity.",
			})
		}

		if strings.EqualFold(ep.SessionType, "Default") {
			findings = append(findings, report.Finding{
				ID:          "JEA-004",
				CheckID:     "jea_endpoints",
				Severity:    report.SeverityLow,
				Title:       "Custom endpoint uses the default session type",
				Description: fmt.Sprintf("Endpoint %q was registered with SessionType 'Default', which imports the full command set instead of starting from an empty session.", ep.Name),
				Evidence:    fmt.Sprintf("%s: SessionType=%s", ep.Name, ep.SessionType),
				Remediation: "Use SessionType 'RestrictedRemoteServer' in the session configuration file.",
			})
		}
	}

	return findings
}
