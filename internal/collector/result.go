// Package collector implements parallel script execution and evidence-first
// persistence of check output.
package collector

import (
	"errors"
	"os/exec"
	"strings"
	"time"
)

// FailureKind classifies why a check produced no usable evidence. The gap
// analysis turns the kind into a forensic-impact statement, so a wrong
// classification misleads the analyst: prefer FailureUnknown over a guess.
type FailureKind int

const (
	FailureNone        FailureKind = iota
	FailureTimeout                 // killed at the check's deadline
	FailurePermission              // access denied by OS or log ACL
	FailureScriptError             // script exited non-zero
	FailureNotFound                // interpreter or fixture missing
	FailureUnknown
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureTimeout:
		return "timeout"
	case FailurePermission:
		return "permission_denied"
	case FailureScriptError:
		return "script_error"
	case FailureNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Result holds everything one check execution produced. Stdout is the JSON
// evidence document; Stderr is kept verbatim because the scripts write
// their diagnostics there.
type Result struct {
	CheckID     string
	Stdout      []byte
	Stderr      []byte
	ExitCode    int // -1 when the process never ran or was killed
	Duration    time.Duration
	Error       error
	TimedOut    bool
	FailureKind FailureKind
	CollectedAt time.Time
}

// classify derives FailureKind from the exit code, the wrapped error, and
// the stderr text. Exit codes cover the portable cases; PowerShell reports
// many permission problems only as prose on stderr, so those are sniffed.
func (r *Result) classify() {
	switch {
	case r.TimedOut:
		r.FailureKind = FailureTimeout
		return
	case r.Error == nil:
		r.FailureKind = FailureNone
		return
	case errors.Is(r.Error, exec.ErrNotFound):
		r.FailureKind = FailureNotFound
		return
	}

	switch r.ExitCode {
	case 5, 126: // ERROR_ACCESS_DENIED, POSIX cannot-execute
		r.FailureKind = FailurePermission
	case 127, 9009: // POSIX and cmd.exe command-not-found
		r.FailureKind = FailureNotFound
	case -1:
		r.FailureKind = FailureUnknown
	default:
		if r.ExitCode <= 0 {
			r.FailureKind = FailureUnknown
			return
		}
		if deniedByStderr(r.Stderr) {
			r.FailureKind = FailurePermission
		} else {
			r.FailureKind = FailureScriptError
		}
	}
}

var deniedPhrases = []string{
	"access denied",
	"access is denied",
	"permission denied",
	"unauthorized operation",
}

func deniedByStderr(stderr []byte) bool {
	text := strings.ToLower(string(stderr))
	for _, phrase := range deniedPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
