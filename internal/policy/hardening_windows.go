//go:build windows

package policy

import (
	"path/filepath"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

// systemTool returns the absolute system32 path of a native tool so a
// tampered PATH cannot substitute it.
func systemTool(name string) string {
	dir, err := windows.GetSystemDirectory()
	if err != nil {
		return name
	}
	return filepath.Join(dir, name)
}

// ReadHardeningState probes the hardening switches directly from the
// registry. Missing keys read as the insecure default so the evaluation
// flags them; probe errors beyond that are treated the same way.
func ReadHardeningState() HardeningState {
	state := HardeningState{Collected: true}

	state.LSAProtection = readDWORD(registry.LOCAL_MACHINE,
		`SYSTEM\CurrentControlSet\Control\Lsa`, "RunAsPPL") >= 1
	state.UACEnabled = readDWORD(registry.LOCAL_MACHINE,
		`SOFTWARE\Microsoft\Windows\CurrentVersion\Policies\System`, "EnableLUA") == 1
	state.RDPNLARequired = readDWORD(registry.LOCAL_MACHINE,
		`SYSTEM\CurrentControlSet\Control\Terminal Server\WinStations\RDP-Tcp`, "UserAuthentication") == 1
	state.AlwaysInstallElevated = AlwaysInstallElevated{
		Machine: readDWORD(registry.LOCAL_MACHINE,
			`SOFTWARE\Policies\Microsoft\Windows\Installer`, "AlwaysInstallElevated") == 1,
		User: readDWORD(registry.CURRENT_USER,
			`SOFTWARE\Policies\Microsoft\Windows\Installer`, "AlwaysInstallElevated") == 1,
	}
	// "4" is the only documented enforcing value.
	state.ConstrainedLanguage = readString(registry.LOCAL_MACHINE,
		`SYSTEM\CurrentControlSet\Control\Session Manager\Environment`, "__PSLockdownPolicy") == "4"
	return state
}

// readDWORD returns the value or 0 when the key or value is absent.
func readDWORD(root registry.Key, path, name string) uint64 {
	key, err := registry.OpenKey(root, path, registry.QUERY_VALUE)
	if err != nil {
		return 0
	}
	defer key.Close()

	val, _, err := key.GetIntegerValue(name)
	if err != nil {
		return 0
	}
	return val
}

// readString returns the value or "" when the key or value is absent.
func readString(root registry.Key, path, name string) string {
	key, err := registry.OpenKey(root, path, registry.QUERY_VALUE)
	if err != nil {
		return ""
	}
	defer key.Close()

	val, _, err := key.GetStringValue(name)
	if err != nil {
		return ""
	}
	return val
}
