package sigma

import "fmt"

// Match records a Sigma rule hit against one collected check result.
type Match struct {
	CheckID   string                 `json:"check_id"`
	RuleTitle string                 `json:"rule_title"`
	RuleID    string                 `json:"rule_id,omitempty"`
	Level     string                 `json:"level"` // informational | low | medium | high | critical
	Count     int                    `json:"count"`
	Event     map[string]interface{} `json:"event"` // first matching event, kept as evidence
}

// evidenceFields are tried in order when summarizing a matched event for
// display. They cover the text-bearing fields the collectors emit.
var evidenceFields = []string{"text", "message", "name", "sam_account_name", "permission", "hotfix_id"}

// Evidence returns a one-line description of the matched event, truncated
// for table display.
func (m Match) Evidence() string {
	const max = 120
	for _, f := range evidenceFields {
		v, ok := m.Event[f]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		if len(s) > max {
			s = s[:max] + "..."
		}
		return fmt.Sprintf("%s=%s", f, s)
	}
	return fmt.Sprintf("%d matching event(s)", m.Count)
}
