// Package jea generates and audits Just Enough Administration session
// configurations: role capability (.psrc) and session configuration (.pssc)
// files on the way out, registered endpoints on the way in.
package jea

import (
	"fmt"
	"strings"
)

// Spec describes the endpoint to generate.
type Spec struct {
	EndpointName     string
	RoleName         string
	Description      string
	AllowedGroups    []string
	VisibleCmdlets   []string
	VisibleFunctions []string
	VisibleProviders []string
	ModulesToImport  []string
	TranscriptDir    string
	VirtualAccount   bool
}

// Issue is one problem Lint found with a spec. Error-level issues block
// generation; warnings are printed but allowed through.
type Issue struct {
	Level   string // "error" or "warning"
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Level, i.Message)
}

// Cmdlets whose presence in a role capability hands the connecting user a
// way out of the sandbox. Exposing any of them defeats the endpoint.
var escapeCmdlets = map[string]bool{
	"invoke-expression":   true,
	"iex":                 true,
	"new-object":          true,
	"add-type":            true,
	"start-process":       true,
	"invoke-command":      true,
	"enter-pssession":     true,
	"invoke-webrequest":   true,
	"invoke-restmethod":   true,
	"set-executionpolicy": true,
	"start-job":           true,
}

// Lint checks a spec for configurations that would defeat the endpoint's
// purpose. It never modifies the spec.
func Lint(spec Spec) []Issue {
	var issues []Issue
	errf := func(format string, args ...any) {
		issues = append(issues, Issue{Level: "error", Message: fmt.Sprintf(format, args...)})
	}
	warnf := func(format string, args ...any) {
		issues = append(issues, Issue{Level: "warning", Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(spec.EndpointName) == "" {
		errf("endpoint name is empty")
	}
	if strings.TrimSpace(spec.RoleName) == "" {
		errf("role name is empty")
	}
	if len(spec.AllowedGroups) == 0 {
		errf("no allowed groups: nobody could connect to the endpoint")
	}
	if len(spec.VisibleCmdlets) == 0 && len(spec.VisibleFunctions) == 0 {
		errf("role exposes no cmdlets or functions")
	}

	for _, c := range spec.VisibleCmdlets {
		name := strings.ToLower(strings.TrimSpace(c))
		switch {
		case name == "*":
			errf("visible cmdlet %q exposes everything; the endpoint constrains nothing", c)
		case escapeCmdlets[name]:
			errf("visible cmdlet %q lets the connecting user escape the session constraints", c)
		case strings.Contains(name, "*"):
			warnf("visible cmdlet %q uses a wildcard; audit every cmdlet it matches", c)
		}
	}

	for _, p := range spec.VisibleProviders {
		name := strings.ToLower(strings.TrimSpace(p))
		switch name {
		case "*":
			errf("visible provider %q exposes every provider namespace", p)
		case "filesystem", "registry":
			warnf("visible provider %q gives raw %s access; prefer a task-specific function", p, name)
		}
	}

	for _, g := range spec.AllowedGroups {
		grantee := strings.ToLower(strings.TrimSpace(g))
		if grantee == "everyone" || strings.HasSuffix(grantee, "\\everyone") ||
			grantee == "authenticated users" || strings.HasSuffix(grantee, "\\authenticated users") {
			errf("allowed group %q grants the endpoint to effectively all users", g)
		}
	}

	if spec.TranscriptDir == "" {
		warnf("no transcript directory: sessions will leave no over-the-shoulder record")
	}
	if !spec.VirtualAccount {
		warnf("endpoint will not use a virtual account; sessions run as the connecting user and need explicit elevation")
	}

	return issues
}

// Blocking reports whether any issue is error-level.
func Blocking(issues []Issue) bool {
	for _, i := range issues {
		if i.Level == "error" {
			return true
		}
	}
	return false
}
