// Package patch parses the hotfix inventory and flags hosts whose update
// state leaves known vulnerabilities open.
package patch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Hotfix is one installed update from the hotfixes check.
type Hotfix struct {
	HotfixID    string `json:"hotfix_id"`
	Description string `json:"description"`
	InstalledOn string `json:"installed_on"`
	InstalledBy string `json:"installed_by"`
}

// Time parses the install timestamp; the zero time means Windows did not
// record one, which happens for updates applied during imaging.
func (h Hotfix) Time() time.Time {
	t, _ := parseTime(h.InstalledOn)
	return t
}

// OSInfo identifies the Windows build the hotfixes apply to.
type OSInfo struct {
	ProductName    string `json:"product_name"`
	DisplayVersion string `json:"display_version"`
	CurrentBuild   string `json:"current_build"`
	UBR            int    `json:"ubr"`
}

// Build renders the build number the way winver shows it.
func (o OSInfo) Build() string {
	if o.CurrentBuild == "" {
		return ""
	}
	return fmt.Sprintf("%s.%d", o.CurrentBuild, o.UBR)
}

// Inventory is the full hotfixes check document.
type Inventory struct {
	Check         string   `json:"check"`
	CollectedAt   string   `json:"collected_at"`
	Computer      string   `json:"computer"`
	OS            OSInfo   `json:"os"`
	PendingReboot bool     `json:"pending_reboot"`
	RebootReasons []string `json:"reboot_reasons"`
	Hotfixes      []Hotfix `json:"hotfixes"`
}

// ParseInventory decodes hotfixes check output.
func ParseInventory(data []byte) (*Inventory, error) {
	var doc Inventory
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse hotfixes output: %w", err)
	}
	if doc.Check != "hotfixes" {
		return nil, fmt.Errorf("hotfixes output carries check id %q", doc.Check)
	}
	return &doc, nil
}

// Newest returns the most recent dated hotfix, or false when none carry a
// parseable date.
func (inv *Inventory) Newest() (Hotfix, bool) {
	var newest Hotfix
	var newestTime time.Time
	found := false
	for _, h := range inv.Hotfixes {
		t := h.Time()
		if t.IsZero() {
			continue
		}
		if !found || t.After(newestTime) {
			newest, newestTime, found = h, t, true
		}
	}
	return newest, found
}

// parseTime accepts the round-trip timestamps the scripts emit plus the
// legacy /Date(ms)/ form found in fixtures captured by other tooling.
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
