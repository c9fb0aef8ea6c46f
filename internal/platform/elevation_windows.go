//go:build windows

package platform

import "golang.org/x/sys/windows"

// IsElevated reports whether the process token carries administrator
// elevation. Checks that read the Security log return partial evidence
// without it.
func IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
