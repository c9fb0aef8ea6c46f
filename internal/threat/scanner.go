package threat

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/psentry/psentry/internal/baseline"
)

// Script is one unit of text submitted for scanning, usually a reassembled
// script block from the PowerShell operational log.
type Script struct {
	ID   string
	Path string
	User string
	Time time.Time
	Text string
}

// Match records one rule firing on one script.
type Match struct {
	RuleID     string    `json:"rule_id"`
	ScriptID   string    `json:"script_id"`
	Path       string    `json:"path,omitempty"`
	User       string    `json:"user,omitempty"`
	Time       time.Time `json:"time"`
	Excerpt    string    `json:"excerpt"`
	Suppressed bool      `json:"suppressed,omitempty"`
}

// RuleHit aggregates the matches for one rule across a scan pass. Matches
// keeps at most maxSampleMatches entries; Count and Suppressed keep counting.
type RuleHit struct {
	Rule       Rule    `json:"rule"`
	Count      int     `json:"count"`
	Suppressed int     `json:"suppressed,omitempty"`
	Matches    []Match `json:"matches"`
}

const maxSampleMatches = 5

// ScanReport is the aggregate result of one scan pass.
type ScanReport struct {
	ScriptsScanned int            `json:"scripts_scanned"`
	RulesEvaluated int            `json:"rules_evaluated"`
	Hits           []RuleHit      `json:"hits"`
	Counts         SeverityCounts `json:"severity_counts"`
	DurationMS     int64          `json:"duration_ms"`
}

// ScanOptions tunes a scan pass.
type ScanOptions struct {
	// Workers caps concurrently scanned scripts; 0 means GOMAXPROCS.
	Workers int
}

// Scan evaluates every enabled rule against every script. A rule hits a
// given script at most once. Matches on scripts whose path is allow-listed
// via the baseline package are kept for display but marked suppressed and
// left out of the severity counts.
func (rs *Ruleset) Scan(ctx context.Context, scripts []Script, opts ScanOptions) (*ScanReport, error) {
	start := time.Now()
	rules := rs.Rules()
	ruleIndex := make(map[string]Rule, len(rules))
	for _, r := range rules {
		ruleIndex[r.ID] = r
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// Each goroutine writes only its own slot, so aggregation needs no lock.
	perScript := make([][]Match, len(scripts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range scripts {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sc := scripts[i]
			suppressed := sc.Path != "" && baseline.MatchKnownPath(sc.Path)
			var found []Match
			for _, rule := range rules {
				ex, ok := rule.match(sc.Text)
				if !ok {
					continue
				}
				found = append(found, Match{
					RuleID:     rule.ID,
					ScriptID:   sc.ID,
					Path:       sc.Path,
					User:       sc.User,
					Time:       sc.Time,
					Excerpt:    ex,
					Suppressed: suppressed,
				})
			}
			perScript[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan interrupted: %w", err)
	}

	byRule := make(map[string]*RuleHit, len(rules))
	var order []string
	var counts SeverityCounts
	for _, matches := range perScript {
		for _, m := range matches {
			hit, ok := byRule[m.RuleID]
			if !ok {
				hit = &RuleHit{Rule: ruleIndex[m.RuleID]}
				byRule[m.RuleID] = hit
				order = append(order, m.RuleID)
			}
			if m.Suppressed {
				hit.Suppressed++
			} else {
				hit.Count++
				counts.Add(hit.Rule.Severity)
			}
			if len(hit.Matches) < maxSampleMatches {
				hit.Matches = append(hit.Matches, m)
			}
		}
	}

	hits := make([]RuleHit, 0, len(byRule))
	for _, id := range order {
		hits = append(hits, *byRule[id])
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Rule.Severity != hits[j].Rule.Severity {
			return hits[i].Rule.Severity > hits[j].Rule.Severity
		}
		if hits[i].Count != hits[j].Count {
			return hits[i].Count > hits[j].Count
		}
		return hits[i].Rule.ID < hits[j].Rule.ID
	})

	return &ScanReport{
		ScriptsScanned: len(scripts),
		RulesEvaluated: len(rules),
		Hits:           hits,
		Counts:         counts,
		DurationMS:     time.Since(start).Milliseconds(),
	}, nil
}
