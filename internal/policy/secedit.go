package policy

import (
	"fmt"

	"golang.org/x/text/encoding/unicode"
	"gopkg.in/ini.v1"

	"github.com/psentry/psentry/internal/report"
)

// SecurityPolicy holds the account policy slice of a secedit export.
// Values of -1 mean the export did not carry the key.
type SecurityPolicy struct {
	MinimumPasswordLength int  `json:"minimum_password_length"`
	PasswordComplexity    bool `json:"password_complexity"`
	MaximumPasswordAge    int  `json:"maximum_password_age"`
	LockoutBadCount       int  `json:"lockout_bad_count"`
	ClearTextPassword     bool `json:"clear_text_password"`
}

// Hardened password policy floor. Shorter minimums get flagged.
const minPasswordLength = 12

// ParseSeceditExport decodes the INF written by secedit /export. The file
// arrives UTF-16 with a BOM; fixtures saved by other tools may already be
// UTF-8, so the transcoding is BOM-sniffed.
func ParseSeceditExport(data []byte) (*SecurityPolicy, error) {
	decoded, err := decodeUTF16IfNeeded(data)
	if err != nil {
		return nil, fmt.Errorf("decode secedit export: %w", err)
	}

	cfg, err := ini.Load(decoded)
	if err != nil {
		return nil, fmt.Errorf("parse secedit export: %w", err)
	}

	sec := cfg.Section("System Access")
	pol := &SecurityPolicy{
		MinimumPasswordLength: sec.Key("MinimumPasswordLength").MustInt(-1),
		PasswordComplexity:    sec.Key("PasswordComplexity").MustInt(0) == 1,
		MaximumPasswordAge:    sec.Key("MaximumPasswordAge").MustInt(-1),
		LockoutBadCount:       sec.Key("LockoutBadCount").MustInt(-1),
		ClearTextPassword:     sec.Key("ClearTextPassword").MustInt(0) == 1,
	}
	return pol, nil
}

func decodeUTF16IfNeeded(data []byte) ([]byte, error) {
	if len(data) >= 2 && data[0] == 0xFF && data[1] == 0xFE {
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Bytes(data)
	}
	if len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF {
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Bytes(data)
	}
	return data, nil
}

// EvaluateSecurityPolicy raises findings on the exported account policy.
func EvaluateSecurityPolicy(pol *SecurityPolicy) []report.Finding {
	if pol == nil {
		return nil
	}
	var findings []report.Finding

	if pol.MinimumPasswordLength >= 0 && pol.MinimumPasswordLength < minPasswordLength {
		findings = append(findings, report.Finding{
			ID:          "POL-101",
			CheckID:     "powershell_security",
			Severity:    report.SeverityMedium,
			Title:       "Minimum password length below the hardened floor",
			Description: fmt.Sprintf("The local policy allows %d-character passwords; current guidance is %d or more.", pol.MinimumPasswordLength, minPasswordLength),
			Evidence:    fmt.Sprintf("MinimumPasswordLength=%d", pol.MinimumPasswordLength),
			Remediation: "Raise the minimum length via the domain or local security policy.",
		})
	}
	if pol.LockoutBadCount == 0 {
		findings = append(findings, report.Finding{
			ID:          "POL-102",
			CheckID:     "powershell_security",
			Severity:    report.SeverityHigh,
			Title:       "Account lockout is disabled",
			Description: "With LockoutBadCount=0 an online password-guessing attack is limited only by network speed.",
			Evidence:    "LockoutBadCount=0",
			ATTACK:      []string{"T1110"},
			Remediation: "Set a lockout threshold (commonly 5-10 attempts).",
		})
	}
	if !pol.PasswordComplexity {
		findings = append(findings, report.Finding{
			ID:          "POL-103",
			CheckID:     "powershell_security",
			Severity:    report.SeverityMedium,
			Title:       "Password complexity is not enforced",
			Evidence:    "PasswordComplexity=0",
			Remediation: "Enable complexity requirements in the password policy.",
		})
	}
	if pol.ClearTextPassword {
		findings = append(findings, report.Finding{
			ID:          "POL-104",
			CheckID:     "powershell_security",
			Severity:    report.SeverityCritical,
			Title:       "Passwords stored with reversible encryption",
			Description: "ClearTextPassword=1 makes every password recoverable in plain text by anyone who can read the store.",
			Evidence:    "ClearTextPassword=1",
			ATTACK:      []string{"T1003"},
			Remediation: "Disable reversible encryption and force password resets.",
		})
	}
	return findings
}
