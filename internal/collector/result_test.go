package collector

import (
	"fmt"
	"os/exec"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		result Result
		want   FailureKind
	}{
		{"clean run", Result{ExitCode: 0}, FailureNone},
		{"timeout wins over exit code", Result{TimedOut: true, ExitCode: 5, Error: fmt.Errorf("timeout after 5s")}, FailureTimeout},
		{"interpreter missing", Result{ExitCode: -1, Error: fmt.Errorf("exec: %w", exec.ErrNotFound)}, FailureNotFound},
		{"access denied exit code", Result{ExitCode: 5, Error: fmt.Errorf("exec: exit status 5")}, FailurePermission},
		{"posix cannot execute", Result{ExitCode: 126, Error: fmt.Errorf("exec: exit status 126")}, FailurePermission},
		{"posix command not found", Result{ExitCode: 127, Error: fmt.Errorf("exec: exit status 127")}, FailureNotFound},
		{"cmd.exe not recognized", Result{ExitCode: 9009, Error: fmt.Errorf("exec: exit status 9009")}, FailureNotFound},
		{"os level exec failure", Result{ExitCode: -1, Error: fmt.Errorf("exec: fork failed")}, FailureUnknown},
		{"plain script failure", Result{ExitCode: 1, Error: fmt.Errorf("exec: exit status 1"), Stderr: []byte("Get-WinEvent: no events found matching criteria")}, FailureScriptError},
		{"denial reported only on stderr", Result{ExitCode: 1, Error: fmt.Errorf("exec: exit status 1"), Stderr: []byte("Get-WinEvent: Attempted to perform an unauthorized operation.")}, FailurePermission},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.result.classify()
			if tc.result.FailureKind != tc.want {
				t.Errorf("FailureKind = %v, want %v", tc.result.FailureKind, tc.want)
			}
		})
	}
}

// The security log denies readers without SeSecurityPrivilege with prose,
// not an exit code; every known phrasing must map to permission_denied.
func TestDeniedByStderr(t *testing.T) {
	denied := []string{
		"Access denied",
		"Access is denied.",
		"permission denied",
		"Attempted to perform an unauthorized operation.",
	}
	for _, text := range denied {
		if !deniedByStderr([]byte("Error: " + text)) {
			t.Errorf("%q not recognized as a denial", text)
		}
	}
	if deniedByStderr([]byte("The RPC server is unavailable")) {
		t.Error("unrelated failure misread as a denial")
	}
}

func TestFailureKindString(t *testing.T) {
	cases := map[FailureKind]string{
		FailureNone:        "none",
		FailureTimeout:     "timeout",
		FailurePermission:  "permission_denied",
		FailureScriptError: "script_error",
		FailureNotFound:    "not_found",
		FailureUnknown:     "unknown",
		FailureKind(99):    "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("FailureKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
