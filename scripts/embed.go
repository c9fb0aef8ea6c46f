// Package scripts provides the embedded PowerShell collection scripts.
package scripts

import "embed"

// WindowsScripts contains the Windows PowerShell collection scripts.
// Each script prints a single JSON document to stdout and diagnostic
// messages to stderr.
//
//go:embed windows/*.ps1
var WindowsScripts embed.FS
