package platform

import "time"

// WindowsChecks returns the 7 Windows security collection checks.
func WindowsChecks() []Check {
	return []Check{
		{
			ID:            "security_events",
			Name:          "Security event log triage",
			Description:   "Logon activity, account changes, audit policy changes, and log-clear events from the Security log",
			Script:        "windows/security_events.ps1",
			Timeout:       45 * time.Second,
			OutputFormat:  "json",
			RequiresAdmin: true,
		},
		{
			ID:            "scriptblock_logs",
			Name:          "PowerShell script block logs",
			Description:   "Event 4104 script block text from the PowerShell Operational log for threat pattern scanning",
			Script:        "windows/scriptblock_logs.ps1",
			Timeout:       45 * time.Second,
			OutputFormat:  "json",
			RequiresAdmin: true,
		},
		{
			ID:            "local_accounts",
			Name:          "Local account inventory",
			Description:   "Local users, password policy flags, and Administrators group membership",
			Script:        "windows/local_accounts.ps1",
			Timeout:       30 * time.Second,
			OutputFormat:  "json",
			RequiresAdmin: false,
		},
		{
			ID:            "ad_accounts",
			Name:          "Active Directory account exposure",
			Description:   "Privileged group members, SPN-bearing accounts, and password policy outliers from the joined domain",
			Script:        "windows/ad_accounts.ps1",
			Timeout:       45 * time.Second,
			OutputFormat:  "json",
			RequiresAdmin: false,
		},
		{
			ID:            "hotfixes",
			Name:          "Installed hotfix inventory",
			Description:   "Installed updates, OS build details, and pending reboot state for patch staleness checks",
			Script:        "windows/hotfixes.ps1",
			Timeout:       30 * time.Second,
			OutputFormat:  "json",
			RequiresAdmin: false,
		},
		{
			ID:            "powershell_security",
			Name:          "PowerShell security posture",
			Description:   "Execution policy, language mode, logging policy, and AMSI provider registration",
			Script:        "windows/powershell_security.ps1",
			Timeout:       30 * time.Second,
			OutputFormat:  "json",
			RequiresAdmin: false,
		},
		{
			ID:            "jea_endpoints",
			Name:          "JEA endpoint inventory",
			Description:   "Registered PowerShell session configurations, their ACLs, and run-as identities",
			Script:        "windows/jea_endpoints.ps1",
			Timeout:       30 * time.Second,
			OutputFormat:  "json",
			RequiresAdmin: true,
		},
	}
}
