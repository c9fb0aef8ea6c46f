// Package eventlog parses the Windows event log evidence and raises
// findings for audit tampering, account manipulation, and authentication
// anomalies.
package eventlog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SecurityEvent is one normalized Security log entry as emitted by the
// security_events check. String fields mirror the event XML data values.
type SecurityEvent struct {
	EventID     int    `json:"event_id"`
	TimeCreated string `json:"time_created"`
	Provider    string `json:"provider"`
	Channel     string `json:"channel"`
	Computer    string `json:"computer"`
	SubjectUser string `json:"subject_user"`
	TargetUser  string `json:"target_user"`
	LogonType   int    `json:"logon_type"`
	SourceIP    string `json:"source_ip"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// Time parses the event timestamp; the zero time means it was unparseable.
func (e SecurityEvent) Time() time.Time {
	t, _ := parseTime(e.TimeCreated)
	return t
}

// LogInfo is the capacity snapshot for one event log.
type LogInfo struct {
	Name        string  `json:"name"`
	IsEnabled   bool    `json:"is_enabled"`
	LogMode     string  `json:"log_mode"`
	FileSizeMB  float64 `json:"file_size_mb"`
	MaxSizeMB   float64 `json:"max_size_mb"`
	FillPercent float64 `json:"fill_percent"`
	RecordCount int     `json:"record_count"`
}

// SecurityEvents is the full security_events check document.
type SecurityEvents struct {
	Check         string          `json:"check"`
	CollectedAt   string          `json:"collected_at"`
	Computer      string          `json:"computer"`
	LookbackHours int             `json:"lookback_hours"`
	Events        []SecurityEvent `json:"events"`
	LogInfo       []LogInfo       `json:"log_info"`
}

// FilterOptions bounds the events analysis considers.
type FilterOptions struct {
	IDs       []int     // keep only these event IDs; empty keeps all
	Since     time.Time // drop events before this instant; zero keeps all
	MaxEvents int       // cap the result; 0 means unlimited
}

// Filter applies opts in order: ID set, time window, cap. Input order is
// preserved. Events whose timestamp does not parse pass the window check;
// dropping evidence because its date is mangled would hide exactly the
// tampering the scan looks for.
func Filter(events []SecurityEvent, opts FilterOptions) []SecurityEvent {
	var ids map[int]bool
	if len(opts.IDs) > 0 {
		ids = make(map[int]bool, len(opts.IDs))
		for _, id := range opts.IDs {
			ids[id] = true
		}
	}

	out := make([]SecurityEvent, 0, len(events))
	for _, e := range events {
		if ids != nil && !ids[e.EventID] {
			continue
		}
		if !opts.Since.IsZero() {
			if t := e.Time(); !t.IsZero() && t.Before(opts.Since) {
				continue
			}
		}
		out = append(out, e)
		if opts.MaxEvents > 0 && len(out) == opts.MaxEvents {
			break
		}
	}
	return out
}

// AnalysisWindow returns the start of a lookback window anchored at the
// newest event. Anchoring at the capture rather than the wall clock keeps
// replayed evidence inside its own window; on a live run the newest event
// is effectively now, so the window matches the collection query.
func AnalysisWindow(events []SecurityEvent, lookback time.Duration) time.Time {
	var latest time.Time
	for _, e := range events {
		if t := e.Time(); t.After(latest) {
			latest = t
		}
	}
	if latest.IsZero() {
		return time.Time{}
	}
	return latest.Add(-lookback)
}

// ParseSecurityEvents decodes security_events check output.
func ParseSecurityEvents(data []byte) (*SecurityEvents, error) {
	var doc SecurityEvents
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse security_events output: %w", err)
	}
	if doc.Check != "security_events" {
		return nil, fmt.Errorf("security_events output carries check id %q", doc.Check)
	}
	return &doc, nil
}

// parseTime accepts the round-trip format the collection scripts emit plus
// the legacy /Date(ms)/ form older ConvertTo-Json versions produce, which
// still shows up in fixture files captured by other tooling.
func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if rest, ok := strings.CutPrefix(s, "/Date("); ok {
		if num, ok := strings.CutSuffix(rest, ")/"); ok {
			if ms, err := strconv.ParseInt(num, 10, 64); err == nil {
				return time.UnixMilli(ms).UTC(), true
			}
		}
	}
	return time.Time{}, false
}
