package threat

// Built-in detection rules. IDs are stable: configs reference them in
// rules.disabled and reports link findings back to them. Patterns favor
// tradecraft strings that rarely appear in admin scripts; genuinely
// dual-use commands sit at low severity instead of being dropped.
var builtinRules = []Rule{
	// Obfuscation
	mustRule("PS-OBF-001", "Encoded command invocation",
		"powershell.exe launched with an -EncodedCommand payload.",
		SeverityHigh, CategoryObfuscation, []string{"T1027", "T1059.001"},
		`(?i)(^|\s)-e(n|nc|ncodedcommand)?\s+[A-Za-z0-9+/=]{16,}`),
	mustRule("PS-OBF-002", "Base64 decode of embedded payload",
		"Script decodes a Base64 blob at runtime, a common loader stage.",
		SeverityHigh, CategoryObfuscation, []string{"T1027", "T1140"},
		`(?i)\[(system\.)?convert\]::frombase64string`),
	mustRule("PS-OBF-003", "Char-array string construction",
		"Strings assembled from character codes to evade keyword matching.",
		SeverityMedium, CategoryObfuscation, []string{"T1027"},
		`(?i)\[char\[\]\]|\[char\]\s*\d+\s*\+\s*\[char\]`),
	mustRule("PS-OBF-004", "Backtick token splitting",
		"Command names broken up with backticks to evade keyword matching.",
		SeverityMedium, CategoryObfuscation, []string{"T1027"},
		"(?i)\\w(`\\w){2,}"),
	mustRule("PS-OBF-005", "Invoke-Expression usage",
		"Dynamic evaluation of generated script text.",
		SeverityMedium, CategoryObfuscation, []string{"T1059.001"},
		`(?i)\b(iex|invoke-expression)\b`),

	// Download cradles
	mustRule("PS-DL-001", "WebClient download method",
		"DownloadString/DownloadFile pulls remote content into the session.",
		SeverityHigh, CategoryDownload, []string{"T1105"},
		`(?i)\.(downloadstring|downloadfile|downloaddata)\s*\(`),
	mustRule("PS-DL-002", "Download piped to execution",
		"Web request output piped straight into Invoke-Expression.",
		SeverityCritical, CategoryDownload, []string{"T1105", "T1059.001"},
		`(?i)(invoke-webrequest|iwr|invoke-restmethod|irm)\b[^|]*\|\s*(iex|invoke-expression)\b`),
	mustRule("PS-DL-003", "BITS transfer",
		"Background Intelligent Transfer Service used to fetch files.",
		SeverityMedium, CategoryDownload, []string{"T1197"},
		`(?i)start-bitstransfer|bitsadmin(\.exe)?\s+/transfer`),
	mustRule("PS-DL-004", "Net.WebClient instantiation",
		"Raw WebClient object created, usually paired with a download call.",
		SeverityMedium, CategoryDownload, []string{"T1105"},
		`(?i)new-object\s+(system\.)?net\.webclient`),
	mustRule("PS-DL-005", "certutil URL fetch",
		"certutil -urlcache abused as a download LOLBin.",
		SeverityHigh, CategoryDownload, []string{"T1105"},
		`(?i)certutil(\.exe)?\s[^\n]{0,60}-urlcache`),

	// Credential theft
	mustRule("PS-CRED-001", "Mimikatz tooling",
		"Mimikatz module names or sekurlsa commands in script text.",
		SeverityCritical, CategoryCredentialTheft, []string{"T1003.001"},
		`(?i)mimikatz|sekurlsa|lsadump`),
	mustRule("PS-CRED-002", "LSASS memory dump",
		"Process dump of lsass.exe for offline credential extraction.",
		SeverityCritical, CategoryCredentialTheft, []string{"T1003.001"},
		`(?i)procdump[^\n]{0,80}lsass|comsvcs\.dll[^\n]{0,40}minidump|minidump[^\n]{0,40}lsass`),
	mustRule("PS-CRED-003", "Registry hive export",
		"reg save of the SAM, SECURITY, or SYSTEM hive.",
		SeverityCritical, CategoryCredentialTheft, []string{"T1003.002"},
		`(?i)reg(\.exe)?\s+save\s+hklm\\(sam|security|system)`),
	mustRule("PS-CRED-004", "DCSync replication abuse",
		"Domain credential replication via DRSUAPI from a non-DC host.",
		SeverityCritical, CategoryCredentialTheft, []string{"T1003.006"},
		`(?i)dcsync|drsuapi|drsr?\s+getncchanges`),
	mustRule("PS-CRED-005", "Kerberoasting tooling",
		"Service ticket requests for offline cracking of SPN accounts.",
		SeverityHigh, CategoryCredentialTheft, []string{"T1558.003"},
		`(?i)invoke-kerberoast|rubeus|get-domainspnticket|kerberoast`),
	mustRule("PS-CRED-006", "Windows credential vault access",
		"Enumeration of stored credentials from the password vault.",
		SeverityMedium, CategoryCredentialTheft, []string{"T1555.004"},
		`(?i)passwordvault|vaultcmd|retrieveall\(\)`),

	// Defense evasion
	mustRule("PS-EVA-001", "AMSI tampering",
		"References to AMSI internals used by common bypass one-liners.",
		SeverityCritical, CategoryDefenseEvasion, []string{"T1562.001"},
		`(?i)amsiutils|amsiinitfailed|amsiscanbuffer|amsicontext`),
	mustRule("PS-EVA-002", "Defender configuration tampering",
		"Set-MpPreference disabling protection or adding exclusions.",
		SeverityHigh, CategoryDefenseEvasion, []string{"T1562.001"},
		`(?i)set-mppreference\s[^\n]{0,80}-disable(realtimemonitoring|behaviormonitoring|ioavprotection|intrusionpreventionsystem)|add-mppreference\s[^\n]{0,80}-exclusion`),
	mustRule("PS-EVA-003", "ETW provider tampering",
		"Event Tracing for Windows patched or unhooked to blind logging.",
		SeverityHigh, CategoryDefenseEvasion, []string{"T1562.006"},
		`(?i)etweventwrite|psetwlogprovider|\[system\.diagnostics\.eventing\.`),
	mustRule("PS-EVA-004", "Event log clearing",
		"Audit trail destruction with Clear-EventLog or wevtutil.",
		SeverityHigh, CategoryDefenseEvasion, []string{"T1070.001"},
		`(?i)clear-eventlog|wevtutil(\.exe)?\s+(cl|clear-log)|limit-eventlog\s[^\n]{0,60}-overflowaction`),
	mustRule("PS-EVA-005", "Execution policy override",
		"Set-ExecutionPolicy Bypass/Unrestricted inside a script block.",
		SeverityMedium, CategoryDefenseEvasion, []string{"T1059.001"},
		`(?i)set-executionpolicy\s+(-\w+\s+)*(bypass|unrestricted)`),
	mustRule("PS-EVA-006", "PowerShell v2 downgrade",
		"Engine downgrade to version 2, which predates AMSI and script block logging.",
		SeverityHigh, CategoryDefenseEvasion, []string{"T1562.010"},
		`(?i)powershell(\.exe)?\s[^\n]{0,40}-v(ersion)?\s+2(\.0)?\b`),
	mustRule("PS-EVA-007", "Hidden window launch",
		"Child PowerShell started with a hidden window.",
		SeverityMedium, CategoryDefenseEvasion, []string{"T1564.003"},
		`(?i)-w(indowstyle)?\s+hidden`),

	// Persistence
	mustRule("PS-PER-001", "Run key persistence",
		"Autorun registry value written under a Run/RunOnce key.",
		SeverityHigh, CategoryPersistence, []string{"T1547.001"},
		`(?i)(new-itemproperty|set-itemproperty|reg(\.exe)?\s+add)[^\n]{0,120}\\(run|runonce)\b`),
	mustRule("PS-PER-002", "Scheduled task creation",
		"New scheduled task registered from script.",
		SeverityMedium, CategoryPersistence, []string{"T1053.005"},
		`(?i)register-scheduledtask|schtasks(\.exe)?\s+/create`),
	mustRule("PS-PER-003", "Service installation",
		"New Windows service created from script.",
		SeverityMedium, CategoryPersistence, []string{"T1543.003"},
		`(?i)new-service\s|sc(\.exe)?\s+create\s`),
	mustRule("PS-PER-004", "WMI event subscription",
		"Permanent WMI event consumer, a fileless persistence mechanism.",
		SeverityHigh, CategoryPersistence, []string{"T1546.003"},
		`(?i)__eventfilter|commandlineeventconsumer|__filtertoconsumerbinding`),
	mustRule("PS-PER-005", "PowerShell profile tampering",
		"Content appended to $profile so it runs in every future session.",
		SeverityMedium, CategoryPersistence, []string{"T1546.013"},
		`(?i)(add-content|set-content|out-file)\s[^\n]{0,60}\$profile`),

	// Discovery
	mustRule("PS-REC-001", "AD recon tooling",
		"PowerView or BloodHound collection functions.",
		SeverityHigh, CategoryDiscovery, []string{"T1087.002", "T1482"},
		`(?i)invoke-bloodhound|sharphound|get-netdomain|get-netcomputer|get-netuser|find-localadminaccess`),
	mustRule("PS-REC-002", "Port scanning loop",
		"Port sweep built from Test-NetConnection or raw TcpClient probes.",
		SeverityLow, CategoryDiscovery, []string{"T1046"},
		`(?i)invoke-portscan|test-netconnection\s[^\n]{0,40}-port\s`),

	// Lateral movement and execution
	mustRule("PS-LAT-001", "Remote session to another host",
		"Invoke-Command/Enter-PSSession with an explicit computer name. Routine for admins, noteworthy in bulk.",
		SeverityLow, CategoryLateralMovement, []string{"T1021.006"},
		`(?i)(invoke-command|enter-pssession)\s[^\n]{0,60}-computername\s`),
	mustRule("PS-LAT-002", "SMB/WMI exec tooling",
		"PsExec-style remote execution helpers.",
		SeverityHigh, CategoryLateralMovement, []string{"T1021.002"},
		`(?i)psexec|paexec|invoke-smbexec|invoke-wmiexec`),
	mustRule("PS-EXE-001", "Process injection API use",
		"VirtualAlloc/WriteProcessMemory/CreateRemoteThread from script.",
		SeverityCritical, CategoryExecution, []string{"T1055"},
		`(?i)virtualalloc|writeprocessmemory|createremotethread|invoke-reflectivepeinjection`),
	mustRule("PS-EXE-002", "Inline shellcode bytes",
		"Byte-array shellcode embedded in script text.",
		SeverityHigh, CategoryExecution, []string{"T1059.001"},
		`(?i)invoke-shellcode|0x[0-9a-f]{2}\s*,\s*0x[0-9a-f]{2}\s*,\s*0x[0-9a-f]{2}`),
	mustRule("PS-EXE-003", "Win32 API via Add-Type",
		"Inline C# with DllImport to reach raw Win32 APIs.",
		SeverityHigh, CategoryExecution, []string{"T1059.001", "T1106"},
		`(?i)\[dllimport\(|add-type\s[^\n]{0,120}dllimport`),
	mustRule("PS-EXE-004", "Raw TCP client in script",
		"Direct Net.Sockets.TcpClient construction, the core of PowerShell reverse shells.",
		SeverityHigh, CategoryExecution, []string{"T1059.001"},
		`(?i)new-object\s+(system\.)?net\.sockets\.tcpclient`),
}
