package threat

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type customRule struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Severity    string   `yaml:"severity"`
	Category    string   `yaml:"category"`
	ATTACK      []string `yaml:"attack"`
	Pattern     string   `yaml:"pattern"`
}

// ParseCustomRules decodes a YAML document of the form:
//
//	rules:
//	  - id: ORG-001
//	    title: Internal tooling abuse
//	    severity: high
//	    category: execution
//	    pattern: '(?i)invoke-orgdeploy'
//
// Each pattern must compile as a Go regexp. Severity defaults to medium
// when omitted.
func ParseCustomRules(data []byte) ([]Rule, error) {
	var doc struct {
		Rules []customRule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse custom rules: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("custom rule file contains no rules")
	}

	out := make([]Rule, 0, len(doc.Rules))
	seen := make(map[string]bool, len(doc.Rules))
	for i, cr := range doc.Rules {
		if cr.ID == "" {
			return nil, fmt.Errorf("custom rule #%d: missing id", i+1)
		}
		if seen[cr.ID] {
			return nil, fmt.Errorf("custom rule %s: duplicate id", cr.ID)
		}
		seen[cr.ID] = true

		sev := SeverityMedium
		if cr.Severity != "" {
			parsed, err := ParseSeverity(cr.Severity)
			if err != nil {
				return nil, fmt.Errorf("custom rule %s: %w", cr.ID, err)
			}
			sev = parsed
		}
		rule, err := NewRule(cr.ID, cr.Title, cr.Description, sev, cr.Category, cr.ATTACK, cr.Pattern)
		if err != nil {
			return nil, fmt.Errorf("custom rules: %w", err)
		}
		out = append(out, rule)
	}
	return out, nil
}

// LoadCustomRules reads and parses a custom rule file.
func LoadCustomRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read custom rules: %w", err)
	}
	return ParseCustomRules(data)
}
