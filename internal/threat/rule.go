package threat

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Rule categories. Reports group hits by these.
const (
	CategoryExecution       = "execution"
	CategoryObfuscation     = "obfuscation"
	CategoryDownload        = "download"
	CategoryCredentialTheft = "credential_theft"
	CategoryDefenseEvasion  = "defense_evasion"
	CategoryPersistence     = "persistence"
	CategoryDiscovery       = "discovery"
	CategoryLateralMovement = "lateral_movement"
)

// Rule is a single detection pattern evaluated against script block text.
// Patterns are case-insensitive Go regexps; a rule hits a script at most once.
type Rule struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	ATTACK      []string `json:"attack,omitempty"`
	Expr        string   `json:"pattern"`

	re *regexp.Regexp
}

// NewRule compiles expr and validates the rule fields.
func NewRule(id, title, desc string, sev Severity, category string, attack []string, expr string) (Rule, error) {
	if strings.TrimSpace(id) == "" {
		return Rule{}, fmt.Errorf("rule id is empty")
	}
	if strings.TrimSpace(expr) == "" {
		return Rule{}, fmt.Errorf("rule %s: pattern is empty", id)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: compile pattern: %w", id, err)
	}
	return Rule{
		ID:          id,
		Title:       title,
		Description: desc,
		Severity:    sev,
		Category:    category,
		ATTACK:      attack,
		Expr:        expr,
		re:          re,
	}, nil
}

// mustRule is for the built-in table; a bad built-in pattern is a programmer
// error and should fail loudly at startup.
func mustRule(id, title, desc string, sev Severity, category string, attack []string, expr string) Rule {
	r, err := NewRule(id, title, desc, sev, category, attack, expr)
	if err != nil {
		panic(err)
	}
	return r
}

// match reports whether the rule fires on text and returns a short excerpt
// around the first match for evidence display.
func (r Rule) match(text string) (string, bool) {
	loc := r.re.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	return excerpt(text, loc[0], loc[1]), true
}

const (
	excerptContext = 40
	excerptMax     = 200
)

func excerpt(text string, start, end int) string {
	lo := start - excerptContext
	if lo < 0 {
		lo = 0
	}
	hi := end + excerptContext
	if hi > len(text) {
		hi = len(text)
	}
	s := text[lo:hi]
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > excerptMax {
		s = s[:excerptMax]
	}
	return s
}

// Ruleset holds the rules to evaluate. Build one with DefaultRuleset, then
// Add custom rules and Disable unwanted IDs before scanning.
type Ruleset struct {
	rules    []Rule
	disabled map[string]bool
}

// DefaultRuleset returns the built-in rules.
func DefaultRuleset() *Ruleset {
	rs := &Ruleset{disabled: make(map[string]bool)}
	rs.rules = append(rs.rules, builtinRules...)
	return rs
}

// Add appends rules, rejecting duplicate IDs.
func (rs *Ruleset) Add(rules ...Rule) error {
	seen := make(map[string]bool, len(rs.rules))
	for _, r := range rs.rules {
		seen[r.ID] = true
	}
	for _, r := range rules {
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule id %s", r.ID)
		}
		if r.re == nil {
			return fmt.Errorf("rule %s: not compiled", r.ID)
		}
		seen[r.ID] = true
		rs.rules = append(rs.rules, r)
	}
	return nil
}

// Disable marks rule IDs to skip during scanning. Unknown IDs are ignored so
// a config written for a newer rule set does not break an older binary.
func (rs *Ruleset) Disable(ids ...string) {
	for _, id := range ids {
		if id != "" {
			rs.disabled[id] = true
		}
	}
}

// Rules returns the enabled rules sorted by ID.
func (rs *Ruleset) Rules() []Rule {
	out := make([]Rule, 0, len(rs.rules))
	for _, r := range rs.rules {
		if !rs.disabled[r.ID] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of enabled rules.
func (rs *Ruleset) Len() int {
	n := 0
	for _, r := range rs.rules {
		if !rs.disabled[r.ID] {
			n++
		}
	}
	return n
}
