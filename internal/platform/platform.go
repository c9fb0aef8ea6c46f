// Package platform provides OS detection and the collection check registry.
package platform

import (
	"runtime"
	"time"
)

// Check describes one collection check: which embedded script gathers its
// evidence and under what constraints.
type Check struct {
	ID            string // stable identifier, also the config.toml key
	Name          string
	Description   string
	Script        string // path inside the embedded script FS
	Timeout       time.Duration
	OutputFormat  string // "json"
	RequiresAdmin bool   // evidence is partial without elevation
}

// DetectOS returns the current operating system identifier.
func DetectOS() string {
	return runtime.GOOS
}

// GetChecks returns the checks runnable on this host. Live collection is
// Windows-only; elsewhere callers replay fixture evidence instead.
func GetChecks() []Check {
	if DetectOS() == "windows" {
		return WindowsChecks()
	}
	return nil
}

// Find looks a check up by ID in the Windows registry.
func Find(id string) (Check, bool) {
	for _, c := range WindowsChecks() {
		if c.ID == id {
			return c, true
		}
	}
	return Check{}, false
}

// FilterChecks keeps only the checks named in allowed. An empty allowed
// list keeps everything.
func FilterChecks(checks []Check, allowed []string) []Check {
	if len(allowed) == 0 {
		return checks
	}
	set := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		set[id] = true
	}
	var filtered []Check
	for _, c := range checks {
		if set[c.ID] {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// FilterEnabled drops checks the config switched off. Checks absent from
// the map stay enabled.
func FilterEnabled(checks []Check, enabledMap map[string]bool) []Check {
	if enabledMap == nil {
		return checks
	}
	var filtered []Check
	for _, c := range checks {
		enabled, exists := enabledMap[c.ID]
		if !exists || enabled {
			filtered = append(filtered, c)
		}
	}
	return filtered
}
