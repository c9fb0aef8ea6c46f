package policy

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/psentry/psentry/internal/report"
)

// AuditSetting is one subcategory row from auditpol /get /category:* /r.
type AuditSetting struct {
	Subcategory string `json:"subcategory"`
	Setting     string `json:"setting"`
}

// Subcategories the triage itself depends on: if these are not audited,
// the security_events evidence has holes rather than answers.
var requiredAuditSubcategories = []string{
	"Logon",
	"User Account Management",
	"Security Group Management",
	"Audit Policy Change",
	"Credential Validation",
}

// ParseAuditPolicyCSV decodes auditpol report output. The header row is
// "Machine Name,Policy Target,Subcategory,Subcategory GUID,Inclusion
// Setting,Exclusion Setting"; column positions are resolved by name so
// localized or reordered output still parses.
func ParseAuditPolicyCSV(data []byte) ([]AuditSetting, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("parse auditpol output: %w", err)
	}
	subIdx, setIdx := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case "Subcategory":
			subIdx = i
		case "Inclusion Setting":
			setIdx = i
		}
	}
	if subIdx < 0 || setIdx < 0 {
		return nil, fmt.Errorf("auditpol output missing Subcategory or Inclusion Setting columns")
	}

	var settings []AuditSetting
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse auditpol output: %w", err)
		}
		if len(row) <= subIdx || len(row) <= setIdx {
			continue
		}
		sub := strings.TrimSpace(row[subIdx])
		if sub == "" {
			continue
		}
		settings = append(settings, AuditSetting{
			Subcategory: sub,
			Setting:     strings.TrimSpace(row[setIdx]),
		})
	}
	return settings, nil
}

// EvaluateAuditPolicy flags required subcategories that record nothing.
func EvaluateAuditPolicy(settings []AuditSetting) []report.Finding {
	if len(settings) == 0 {
		return nil
	}

	bySubcategory := make(map[string]string, len(settings))
	for _, s := range settings {
		bySubcategory[s.Subcategory] = s.Setting
	}

	var unaudited []string
	for _, required := range requiredAuditSubcategories {
		setting, ok := bySubcategory[required]
		if !ok {
			continue
		}
		if strings.EqualFold(setting, "No Auditing") {
			unaudited = append(unaudited, required)
		}
	}
	if len(unaudited) == 0 {
		return nil
	}

	return []report.Finding{{
		ID:          "POL-201",
		CheckID:     "powershell_security",
		Severity:    report.SeverityMedium,
		Title:       "Key audit subcategories record nothing",
		Description: "These subcategories feed the event log evidence this triage relies on; with them off, the absence of findings proves little.",
		Evidence:    strings.Join(unaudited, ", "),
		ATTACK:      []string{"T1562.002"},
		Remediation: "Enable at least Success auditing for the listed subcategories.",
	}}
}
