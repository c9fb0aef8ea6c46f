// Package sigma evaluates Sigma detection rules against collected check
// output: security events, script block fragments, account inventories and
// session endpoint listings. Rules are scoped to a check by
// logsource.category, so a rule written for scriptblock_logs never sees
// hotfix records.
package sigma

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	sigmalib "github.com/bradleyjkemp/sigma-go"
	"github.com/bradleyjkemp/sigma-go/evaluator"

	"github.com/psentry/psentry/internal/collector"
)

//go:embed rules
var embeddedRules embed.FS

// Engine holds compiled Sigma rules ready for evaluation.
type Engine struct {
	rules []evaluator.RuleEvaluator
}

// NewDefault loads the embedded rule set.
func NewDefault() (*Engine, error) {
	sub, err := fs.Sub(embeddedRules, "rules")
	if err != nil {
		return nil, err
	}
	return New(sub)
}

// New loads every .yml/.yaml file under rulesFS as a Sigma rule.
func New(rulesFS fs.FS) (*Engine, error) {
	eng := &Engine{}
	if err := eng.loadFS(rulesFS); err != nil {
		return nil, err
	}
	return eng, nil
}

// LoadDir adds rules from a directory on disk to an existing engine, on top
// of whatever is already loaded.
func (e *Engine) LoadDir(dir string) error {
	return e.loadFS(os.DirFS(dir))
}

func (e *Engine) loadFS(rulesFS fs.FS) error {
	return fs.WalkDir(rulesFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yml" && ext != ".yaml" {
			return nil
		}
		data, err := fs.ReadFile(rulesFS, path)
		if err != nil {
			return err
		}
		rule, err := sigmalib.ParseRule(data)
		if err != nil {
			return fmt.Errorf("sigma rule %s: %w", path, err)
		}
		e.rules = append(e.rules, *evaluator.ForRule(rule))
		return nil
	})
}

// Len reports how many rules are loaded.
func (e *Engine) Len() int { return len(e.rules) }

// MatchAll evaluates every loaded rule against every collected result.
// A rule contributes at most one Match per result; Count records how many
// events in that result satisfied it.
func (e *Engine) MatchAll(ctx context.Context, results []collector.Result) []Match {
	var matches []Match
	for _, result := range results {
		if len(result.Stdout) == 0 {
			continue
		}
		matches = append(matches, e.matchResult(ctx, result)...)
	}
	return matches
}

func (e *Engine) matchResult(ctx context.Context, result collector.Result) []Match {
	var data map[string]interface{}
	if err := json.Unmarshal(result.Stdout, &data); err != nil {
		return nil
	}

	events := extractEvents(data)
	if len(events) == 0 {
		return nil
	}

	var matches []Match
	for _, ev := range e.rules {
		cat := ev.Rule.Logsource.Category
		if cat != "" && cat != result.CheckID {
			continue
		}

		var hit *Match
		for _, event := range events {
			res, err := ev.Matches(ctx, event)
			if err != nil || !res.Match {
				continue
			}
			if hit == nil {
				hit = &Match{
					CheckID:   result.CheckID,
					RuleTitle: ev.Rule.Title,
					RuleID:    ev.Rule.ID,
					Level:     ev.Rule.Level,
					Event:     event,
				}
			}
			hit.Count++
		}
		if hit != nil {
			matches = append(matches, *hit)
		}
	}
	return matches
}

// extractEvents flattens collected check JSON into candidate events.
// Elements of top-level arrays become one event each; top-level objects
// (like the os or domain blocks) are taken whole. Scalars are skipped.
// Keys are walked in sorted order so the representative event attached to
// a match is stable between runs.
func extractEvents(data map[string]interface{}) []map[string]interface{} {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var events []map[string]interface{}
	for _, k := range keys {
		switch typed := data[k].(type) {
		case []interface{}:
			for _, item := range typed {
				if m, ok := item.(map[string]interface{}); ok {
					events = append(events, m)
				}
			}
		case map[string]interface{}:
			events = append(events, typed)
		}
	}
	return events
}
