package eventlog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ScriptBlockEvent is one 4104 entry from the PowerShell Operational log.
// Large script blocks arrive split across several events sharing a
// scriptblock_id; MessageNumber orders the fragments.
type ScriptBlockEvent struct {
	EventID       int    `json:"event_id"`
	TimeCreated   string `json:"time_created"`
	Computer      string `json:"computer"`
	ScriptBlockID string `json:"scriptblock_id"`
	MessageNumber int    `json:"message_number"`
	MessageTotal  int    `json:"message_total"`
	Path          string `json:"path"`
	Text          string `json:"text"`
	User          string `json:"user"`
}

// ScriptBlockLog is the full scriptblock_logs check document.
type ScriptBlockLog struct {
	Check          string             `json:"check"`
	CollectedAt    string             `json:"collected_at"`
	Computer       string             `json:"computer"`
	LookbackHours  int                `json:"lookback_hours"`
	LoggingEnabled bool               `json:"logging_enabled"`
	Events         []ScriptBlockEvent `json:"events"`
}

// ParseScriptBlocks decodes scriptblock_logs check output.
func ParseScriptBlocks(data []byte) (*ScriptBlockLog, error) {
	var doc ScriptBlockLog
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse scriptblock_logs output: %w", err)
	}
	if doc.Check != "scriptblock_logs" {
		return nil, fmt.Errorf("scriptblock_logs output carries check id %q", doc.Check)
	}
	return &doc, nil
}

// ReassembledScript is one logical script block stitched back together from
// its 4104 fragments.
type ReassembledScript struct {
	ID        string    `json:"id"`
	Path      string    `json:"path,omitempty"`
	User      string    `json:"user,omitempty"`
	Time      time.Time `json:"time"`
	Text      string    `json:"-"`
	Fragments int       `json:"fragments"`
	// Partial is set when fragments are missing, usually because the log
	// wrapped mid-script. The text still scans, but matches may be lost.
	Partial bool `json:"partial,omitempty"`
}

// Reassemble groups 4104 fragments by script block ID and joins them in
// message order. Events without an ID are treated as single-fragment
// scripts keyed by their position so no text is dropped.
func Reassemble(events []ScriptBlockEvent) []ReassembledScript {
	groups := make(map[string][]ScriptBlockEvent)
	var order []string
	for i, evt := range events {
		key := evt.ScriptBlockID
		if key == "" {
			key = fmt.Sprintf("unkeyed-%d", i)
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], evt)
	}

	scripts := make([]ReassembledScript, 0, len(groups))
	for _, key := range order {
		frags := groups[key]
		sort.SliceStable(frags, func(i, j int) bool {
			return frags[i].MessageNumber < frags[j].MessageNumber
		})

		var sb strings.Builder
		for _, f := range frags {
			sb.WriteString(f.Text)
		}

		first := frags[0]
		ts, _ := parseTime(first.TimeCreated)
		scripts = append(scripts, ReassembledScript{
			ID:        key,
			Path:      first.Path,
			User:      first.User,
			Time:      ts,
			Text:      sb.String(),
			Fragments: len(frags),
			Partial:   first.MessageTotal > 0 && len(frags) < first.MessageTotal,
		})
	}
	return scripts
}
