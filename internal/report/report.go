package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/psentry/psentry/internal/sigma"
	"github.com/psentry/psentry/internal/threat"
)

// LogonActivity summarizes the logon events in the collection window for the
// report header. The orchestrator fills it from the security_events check.
type LogonActivity struct {
	Successes       int            `json:"successes"`
	Failures        int            `json:"failures"`
	UniqueUsers     int            `json:"unique_users"`
	ByLogonType     map[string]int `json:"by_logon_type,omitempty"`
	ExternalSources []string       `json:"external_sources,omitempty"`
}

// PatchStatus summarizes the hotfixes check for the report header.
type PatchStatus struct {
	Build         string `json:"build,omitempty"`
	NewestHotfix  string `json:"newest_hotfix,omitempty"`
	InstalledOn   string `json:"installed_on,omitempty"`
	AgeDays       int    `json:"age_days"`
	PendingReboot bool   `json:"pending_reboot"`
}

// EvidenceHash holds file-level integrity information for the report.
type EvidenceHash struct {
	File   string `json:"file"`
	SHA256 string `json:"sha256"`
	Size   int    `json:"size"`
}

// ReportData is the complete data model behind every output format.
type ReportData struct {
	Hostname      string    `json:"hostname"`
	OS            string    `json:"os"`
	RunID         string    `json:"run_id"`
	HostID        string    `json:"host_id,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
	Version       string    `json:"version"`
	LookbackHours int       `json:"lookback_hours"`

	Assessment  Assessment `json:"assessment"`
	TotalChecks int        `json:"total_checks"`

	Findings     []Finding          `json:"findings"`
	Scan         *threat.ScanReport `json:"scan,omitempty"`
	SigmaMatches []sigma.Match      `json:"sigma_matches,omitempty"`

	Logons *LogonActivity `json:"logons,omitempty"`
	Patch  *PatchStatus   `json:"patch,omitempty"`

	CollectionFailures []CollectionFailure `json:"collection_failures,omitempty"`
	Gaps               []Gap               `json:"gaps,omitempty"`

	EvidenceHashes []EvidenceHash `json:"evidence_hashes,omitempty"`

	// RawCheckData holds the raw collected JSON for each check (keyed by
	// check ID) so the report's evidence viewer works without the archive.
	RawCheckData map[string]string `json:"raw_check_data,omitempty"`

	CollectionDuration string `json:"collection_duration"`
	AnalysisDuration   string `json:"analysis_duration"`
}

// SuppressedCount returns how many findings are baseline-suppressed.
func (d ReportData) SuppressedCount() int {
	n := 0
	for _, f := range d.Findings {
		if f.Suppressed {
			n++
		}
	}
	return n
}

// WriteJSON writes the machine-readable report to report.json in outputDir.
func WriteJSON(data ReportData, outputDir string) (string, error) {
	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	path := filepath.Join(outputDir, "report.json")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", fmt.Errorf("write report.json: %w", err)
	}
	return path, nil
}
