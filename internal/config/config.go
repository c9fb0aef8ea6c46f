// Package config handles loading and validating the config.toml configuration file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration.
type Config struct {
	Scan     ScanConfig      `toml:"scan"`
	Rules    RulesConfig     `toml:"rules"`
	Baseline BaselineConfig  `toml:"baseline"`
	JEA      JEAConfig       `toml:"jea"`
	Output   OutputConfig    `toml:"output"`
	Checks   map[string]bool `toml:"checks"`
}

// ScanConfig bounds the event collection window and reporting thresholds.
type ScanConfig struct {
	// LookbackHours is how far back event log queries reach. Scripts receive
	// it via the PSENTRY_LOOKBACK_HOURS environment variable.
	LookbackHours int `toml:"lookback_hours"`
	// MaxEvents caps the number of events each log query returns.
	MaxEvents int `toml:"max_events"`
	// PatchMaxAgeDays is the hotfix staleness threshold. A host whose newest
	// hotfix is older than this is flagged.
	PatchMaxAgeDays int `toml:"patch_max_age_days"`
	// MinSeverity drops findings below this level from the report
	// (info, low, medium, high, critical).
	MinSeverity string `toml:"min_severity"`
}

// RulesConfig controls the threat rule set.
type RulesConfig struct {
	// CustomPath points to a YAML file of additional threat rules.
	CustomPath string `toml:"custom_path"`
	// Disabled lists rule IDs to skip (built-in or custom).
	Disabled []string `toml:"disabled"`
	// SigmaDir points to a directory of Sigma rules (.yml) evaluated
	// alongside the embedded set.
	SigmaDir string `toml:"sigma_dir"`
}

// BaselineConfig declares known-good artifacts on this host that should not be
// flagged. Matching findings are kept in the report but marked suppressed so
// an analyst can still see what was excluded.
type BaselineConfig struct {
	// KnownAccounts are local or domain account names that are legitimate and
	// expected. Example: ["backup_svc", "scanner_agent"]
	KnownAccounts []string `toml:"known_accounts"`
	// KnownPaths are script path prefixes belonging to trusted automation.
	// Script blocks executed from these paths are suppressed.
	// Example: ["C:\\ProgramData\\deploy", "D:\\ops\\scripts"]
	KnownPaths []string `toml:"known_paths"`
	// KnownIPs are addresses or CIDRs of expected management infrastructure.
	// Logon summaries exclude them from remote-source counting.
	KnownIPs []string `toml:"known_ips"`
}

// JEAConfig seeds the jea init command.
type JEAConfig struct {
	EndpointName string `toml:"endpoint_name"`
	RoleName     string `toml:"role_name"`
	// AllowedGroups are the principals granted the role, e.g.
	// ["CORP\\SupportStaff"].
	AllowedGroups    []string `toml:"allowed_groups"`
	VisibleCmdlets   []string `toml:"visible_cmdlets"`
	VisibleFunctions []string `toml:"visible_functions"`
	// VisibleProviders exposes PowerShell providers (FileSystem, Registry)
	// inside the session. Most endpoints should leave this empty.
	VisibleProviders []string `toml:"visible_providers"`
	ModulesToImport  []string `toml:"modules_to_import"`
	TranscriptDir    string   `toml:"transcript_dir"`
	VirtualAccount   bool     `toml:"virtual_account"`
	OutputDir        string   `toml:"output_dir"`
}

// OutputConfig configures output behavior.
type OutputConfig struct {
	Dir         string   `toml:"dir"`
	Formats     []string `toml:"formats"` // html, json
	OpenBrowser bool     `toml:"open_browser"`
	KeepRaw     bool     `toml:"keep_raw"`
}

// Default returns the configuration used when no config.toml exists.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			LookbackHours:   72,
			MaxEvents:       2000,
			PatchMaxAgeDays: 60,
			MinSeverity:     "low",
		},
		JEA: JEAConfig{
			EndpointName:   "psentry.Support",
			RoleName:       "SupportRole",
			VirtualAccount: true,
			OutputDir:      "jea",
		},
		Output: OutputConfig{
			Dir:     "output",
			Formats: []string{"html", "json"},
			KeepRaw: true,
		},
		Checks: make(map[string]bool),
	}
}

// Load reads a config.toml file and returns a validated Config.
// A missing file is not an error: the defaults apply, so the scanner works
// out of the box on a host it has never seen.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides lets deployment tooling adjust the config without
// touching the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PSENTRY_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("PSENTRY_MIN_SEVERITY"); v != "" {
		cfg.Scan.MinSeverity = v
	}
	if v := os.Getenv("PSENTRY_LOOKBACK_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Scan.LookbackHours = n
		}
	}
	if v := os.Getenv("PSENTRY_RULES_PATH"); v != "" {
		cfg.Rules.CustomPath = v
	}
}

var validSeverities = map[string]bool{
	"info": true, "low": true, "medium": true, "high": true, "critical": true,
}

func (c *Config) validate() error {
	if c.Scan.LookbackHours <= 0 {
		c.Scan.LookbackHours = 72
	}
	if c.Scan.MaxEvents <= 0 {
		c.Scan.MaxEvents = 2000
	}
	if c.Scan.PatchMaxAgeDays <= 0 {
		c.Scan.PatchMaxAgeDays = 60
	}

	c.Scan.MinSeverity = strings.ToLower(strings.TrimSpace(c.Scan.MinSeverity))
	if c.Scan.MinSeverity == "" {
		c.Scan.MinSeverity = "low"
	}
	if !validSeverities[c.Scan.MinSeverity] {
		return fmt.Errorf("scan.min_severity: unknown level %q (info, low, medium, high, critical)", c.Scan.MinSeverity)
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "output"
	}
	if len(c.Output.Formats) == 0 {
		c.Output.Formats = []string{"html", "json"}
	}
	for i, f := range c.Output.Formats {
		f = strings.ToLower(strings.TrimSpace(f))
		c.Output.Formats[i] = f
		if f != "html" && f != "json" {
			return fmt.Errorf("output.formats: unsupported format %q (html, json)", f)
		}
	}

	if c.Rules.CustomPath != "" {
		if _, err := os.Stat(c.Rules.CustomPath); err != nil {
			return fmt.Errorf("rules.custom_path: %s: %w", c.Rules.CustomPath, err)
		}
	}
	if c.Rules.SigmaDir != "" {
		if fi, err := os.Stat(c.Rules.SigmaDir); err != nil {
			return fmt.Errorf("rules.sigma_dir: %s: %w", c.Rules.SigmaDir, err)
		} else if !fi.IsDir() {
			return fmt.Errorf("rules.sigma_dir: %s is not a directory", c.Rules.SigmaDir)
		}
	}

	if c.JEA.EndpointName == "" {
		c.JEA.EndpointName = "psentry.Support"
	}
	if c.JEA.RoleName == "" {
		c.JEA.RoleName = "SupportRole"
	}
	if c.JEA.OutputDir == "" {
		c.JEA.OutputDir = "jea"
	}

	return nil
}

// WantsFormat reports whether the named output format is enabled.
func (c *Config) WantsFormat(name string) bool {
	for _, f := range c.Output.Formats {
		if f == name {
			return true
		}
	}
	return false
}
