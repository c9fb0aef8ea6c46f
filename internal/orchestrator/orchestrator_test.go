package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/psentry/psentry/internal/baseline"
	"github.com/psentry/psentry/internal/config"
	"github.com/psentry/psentry/internal/patch"
	"github.com/psentry/psentry/internal/platform"
	"github.com/psentry/psentry/internal/report"
)

// Fixture documents for one deliberately hostile host: cleared security
// log, AMSI bypass in the script block log, enabled Guest, a kerberoastable
// domain admin, stale patches, logging disabled, and an endpoint open to
// Everyone.
const (
	fixtureSecurityEvents = `{
  "check": "security_events",
  "collected_at": "2025-11-05T09:00:00Z",
  "computer": "FIXTURE-01",
  "lookback_hours": 72,
  "events": [
    {"event_id": 1102, "time_created": "2025-11-05T03:12:44Z", "provider": "Microsoft-Windows-Eventlog", "channel": "Security", "computer": "FIXTURE-01", "subject_user": "helpdesk7", "message": "The audit log was cleared."},
    {"event_id": 4624, "time_created": "2025-11-05T03:10:02Z", "provider": "Microsoft-Windows-Security-Auditing", "channel": "Security", "computer": "FIXTURE-01", "target_user": "helpdesk7", "logon_type": 10, "source_ip": "203.0.113.50"}
  ],
  "log_info": [
    {"name": "Security", "is_enabled": true, "log_mode": "Circular", "file_size_mb": 19.8, "max_size_mb": 20, "fill_percent": 99.2, "record_count": 41822},
    {"name": "Microsoft-Windows-PowerShell/Operational", "is_enabled": true, "log_mode": "Circular", "file_size_mb": 4.1, "max_size_mb": 15, "fill_percent": 27.3, "record_count": 9120}
  ]
}`

	fixtureScriptBlocks = `{
  "check": "scriptblock_logs",
  "collected_at": "2025-11-05T09:00:00Z",
  "computer": "FIXTURE-01",
  "lookback_hours": 72,
  "logging_enabled": true,
  "events": [
    {"event_id": 4104, "time_created": "2025-11-05T03:09:41Z", "computer": "FIXTURE-01", "scriptblock_id": "d3c1aa80-4c5e-4a0f-9e5e-0b6f3e2f9c11", "message_number": 1, "message_total": 2, "path": "", "text": "$a=[Ref].Assembly.GetType('System.Management.Automation.AmsiUtils');$f=$a.GetField('amsiInitFailed','NonPublic,Static');", "user": "FIXTURE-01\\helpdesk7"},
    {"event_id": 4104, "time_created": "2025-11-05T03:09:41Z", "computer": "FIXTURE-01", "scriptblock_id": "d3c1aa80-4c5e-4a0f-9e5e-0b6f3e2f9c11", "message_number": 2, "message_total": 2, "path": "", "text": "$f.SetValue($null,$true); iex ([Text.Encoding]::UTF8.GetString([Convert]::FromBase64String($payload)))", "user": "FIXTURE-01\\helpdesk7"}
  ]
}`

	fixtureLocalAccounts = `{
  "check": "local_accounts",
  "collected_at": "2025-11-05T09:00:00Z",
  "computer": "FIXTURE-01",
  "accounts": [
    {"name": "Administrator", "full_name": "", "sid": "S-1-5-21-1111111111-2222222222-3333333333-500", "enabled": false, "locked_out": false, "password_required": true, "password_changeable": true, "password_never_expires": false, "description": "Built-in account"},
    {"name": "Guest", "full_name": "", "sid": "S-1-5-21-1111111111-2222222222-3333333333-501", "enabled": true, "locked_out": false, "password_required": false, "password_changeable": false, "password_never_expires": true, "description": "Built-in guest account"}
  ],
  "administrators": [
    {"name": "FIXTURE-01\\Administrator", "object_class": "User", "principal_source": "Local", "sid": "S-1-5-21-1111111111-2222222222-3333333333-500"}
  ]
}`

	fixtureADAccounts = `{
  "check": "ad_accounts",
  "collected_at": "2025-11-05T09:00:00Z",
  "computer": "FIXTURE-01",
  "domain_joined": true,
  "domain": {"name": "corp.example.com", "forest": "example.com", "logon_server": "\\\\DC01"},
  "accounts": [
    {"sam_account_name": "svc_sql", "display_name": "SQL Service", "enabled": true, "password_never_expires": true, "admin_count": 1, "spns": ["MSSQLSvc/sql01.corp.example.com:1433"], "last_logon": "2025-11-04T22:10:00Z", "pwd_last_set": "2022-03-15T08:00:00Z", "privileged_groups": ["Domain Admins"]}
  ]
}`

	fixtureHotfixes = `{
  "check": "hotfixes",
  "collected_at": "2025-11-05T09:00:00Z",
  "computer": "FIXTURE-01",
  "os": {"product_name": "Windows Server 2022 Standard", "display_version": "21H2", "current_build": "20348", "ubr": 2655},
  "pending_reboot": true,
  "reboot_reasons": ["Component Based Servicing"],
  "hotfixes": [
    {"hotfix_id": "KB5041160", "description": "Security Update", "installed_on": "2024-08-13T00:00:00Z", "installed_by": "NT AUTHORITY\\SYSTEM"},
    {"hotfix_id": "KB5039227", "description": "Security Update", "installed_on": "2024-06-11T00:00:00Z", "installed_by": "NT AUTHORITY\\SYSTEM"}
  ]
}`

	fixturePosture = `{
  "check": "powershell_security",
  "collected_at": "2025-11-05T09:00:00Z",
  "computer": "FIXTURE-01",
  "ps_version": "5.1.20348.2652",
  "language_mode": "FullLanguage",
  "v2_engine_present": true,
  "execution_policies": [
    {"scope": "MachinePolicy", "policy": "Undefined"},
    {"scope": "LocalMachine", "policy": "Unrestricted"}
  ],
  "logging": {"script_block_logging": false, "module_logging": false, "transcription": false, "transcript_dir": ""},
  "amsi_providers": [{"clsid": "{2781761E-28E0-4109-99FE-B9D127C57AFE}", "name": "Windows Defender"}]
}`

	fixtureJEAEndpoints = `{
  "check": "jea_endpoints",
  "collected_at": "2025-11-05T09:00:00Z",
  "computer": "FIXTURE-01",
  "endpoints": [
    {"name": "microsoft.powershell", "ps_version": "5.1", "session_type": "Default", "language_mode": "FullLanguage", "run_as_user": "", "run_as_virtual_account": false, "permission": "NT AUTHORITY\\INTERACTIVE AccessAllowed, BUILTIN\\Administrators AccessAllowed, Everyone AccessAllowed"},
    {"name": "Ops.Maintenance", "ps_version": "5.1", "session_type": "RestrictedRemoteServer", "language_mode": "NoLanguage", "run_as_user": "", "run_as_virtual_account": true, "permission": "CORP\\OpsTeam AccessAllowed"}
  ]
}`
)

func writeFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	docs := map[string]string{
		"security_events":     fixtureSecurityEvents,
		"scriptblock_logs":    fixtureScriptBlocks,
		"local_accounts":      fixtureLocalAccounts,
		"ad_accounts":         fixtureADAccounts,
		"hotfixes":            fixtureHotfixes,
		"powershell_security": fixturePosture,
		"jea_endpoints":       fixtureJEAEndpoints,
	}
	for id, doc := range docs {
		if err := os.WriteFile(filepath.Join(dir, id+".json"), []byte(doc), 0o644); err != nil {
			t.Fatalf("write fixture %s: %v", id, err)
		}
	}
	return dir
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	return cfg
}

func findRunDir(t *testing.T, outputDir string) string {
	t.Helper()
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			return filepath.Join(outputDir, e.Name())
		}
	}
	t.Fatal("no run directory created")
	return ""
}

func TestNew_FixtureReplayUsesWindowsChecks(t *testing.T) {
	t.Cleanup(baseline.Reset)
	cfg := testConfig(t)
	orch := New(cfg, Options{Fixture: t.TempDir()})

	want := len(platform.WindowsChecks())
	if len(orch.checks) != want {
		t.Errorf("checks = %d, want %d", len(orch.checks), want)
	}
}

func TestNew_OnlyFilter(t *testing.T) {
	t.Cleanup(baseline.Reset)
	cfg := testConfig(t)
	orch := New(cfg, Options{Fixture: t.TempDir(), Only: []string{"hotfixes"}})

	if len(orch.checks) != 1 || orch.checks[0].ID != "hotfixes" {
		t.Errorf("expected only hotfixes, got %v", orch.checks)
	}
}

func TestNew_DisabledChecksDropped(t *testing.T) {
	t.Cleanup(baseline.Reset)
	cfg := testConfig(t)
	cfg.Checks = map[string]bool{"ad_accounts": false}
	orch := New(cfg, Options{Fixture: t.TempDir()})

	for _, c := range orch.checks {
		if c.ID == "ad_accounts" {
			t.Error("ad_accounts should be filtered out")
		}
	}
	if len(orch.checks) != len(platform.WindowsChecks())-1 {
		t.Errorf("checks = %d, want %d", len(orch.checks), len(platform.WindowsChecks())-1)
	}
}

func TestNew_RegistersBaseline(t *testing.T) {
	t.Cleanup(baseline.Reset)
	cfg := testConfig(t)
	cfg.Baseline.KnownAccounts = []string{"backup_svc"}
	cfg.Baseline.KnownIPs = []string{"198.51.100.0/24"}
	New(cfg, Options{Fixture: t.TempDir()})

	if !baseline.IsKnownAccount("backup_svc") {
		t.Error("configured account not registered")
	}
	if !baseline.IsKnownIP("198.51.100.7") {
		t.Error("configured CIDR not registered")
	}
}

func TestRun_SkipCollectWithoutFixture(t *testing.T) {
	t.Cleanup(baseline.Reset)
	cfg := testConfig(t)
	orch := New(cfg, Options{SkipCollect: true})

	_, err := orch.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "fixture") {
		t.Errorf("expected fixture requirement error, got %v", err)
	}
}

func TestRun_NoChecks(t *testing.T) {
	t.Cleanup(baseline.Reset)
	cfg := testConfig(t)
	orch := New(cfg, Options{Fixture: t.TempDir(), Only: []string{"no_such_check"}})

	_, err := orch.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no checks") {
		t.Errorf("expected no-checks error, got %v", err)
	}
}

func TestRun_CollectOnlyFixtureDoesNothing(t *testing.T) {
	t.Cleanup(baseline.Reset)
	cfg := testConfig(t)
	fixtureDir := writeFixtures(t)
	orch := New(cfg, Options{Fixture: fixtureDir, SkipCollect: true, CollectOnly: true, Version: "test"})

	data, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if data != nil {
		t.Error("collect-only run should not produce report data")
	}
	entries, _ := os.ReadDir(cfg.Output.Dir)
	if len(entries) != 0 {
		t.Errorf("collect-only fixture run should write nothing, found %d entries", len(entries))
	}
}

func TestRun_FixtureEndToEnd(t *testing.T) {
	t.Cleanup(baseline.Reset)
	cfg := testConfig(t)
	fixtureDir := writeFixtures(t)
	orch := New(cfg, Options{Fixture: fixtureDir, SkipCollect: true, Version: "test-0.3.0"})

	data, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if data == nil {
		t.Fatal("expected report data")
	}

	if data.Assessment.Verdict != report.VerdictAlert {
		t.Errorf("verdict = %s, want alert; reasons: %v", data.Assessment.Verdict, data.Assessment.Reasons)
	}
	if data.TotalChecks != 7 {
		t.Errorf("TotalChecks = %d, want 7", data.TotalChecks)
	}
	if len(data.CollectionFailures) != 0 {
		t.Errorf("unexpected collection failures: %v", data.CollectionFailures)
	}

	ids := make(map[string]bool)
	for _, f := range data.Findings {
		ids[f.ID] = true
	}
	for _, want := range []string{"EVT-001", "ACC-001", "PATCH-001", "JEA-001"} {
		if !ids[want] {
			t.Errorf("finding %s missing; got %v", want, keys(ids))
		}
	}

	if data.Logons == nil {
		t.Fatal("logon summary missing")
	}
	if data.Logons.Successes != 1 {
		t.Errorf("Successes = %d, want 1", data.Logons.Successes)
	}
	if len(data.Logons.ExternalSources) == 0 {
		t.Error("203.0.113.50 should be an external source")
	}

	if data.Patch == nil {
		t.Fatal("patch summary missing")
	}
	if data.Patch.NewestHotfix != "KB5041160" {
		t.Errorf("NewestHotfix = %s", data.Patch.NewestHotfix)
	}
	if data.Patch.Build != "20348.2655" {
		t.Errorf("Build = %s", data.Patch.Build)
	}
	if !data.Patch.PendingReboot {
		t.Error("PendingReboot should be true")
	}

	if data.Scan == nil {
		t.Fatal("scan report missing")
	}
	if len(data.Scan.Hits) < 2 {
		t.Errorf("expected at least 2 rule hits, got %d", len(data.Scan.Hits))
	}
	if data.Scan.Counts.Critical < 1 {
		t.Error("AMSI bypass should produce a critical scan hit")
	}

	if len(data.SigmaMatches) < 2 {
		t.Errorf("expected sigma matches for cleared log and AMSI bypass, got %d", len(data.SigmaMatches))
	}

	if len(data.RawCheckData) != 7 {
		t.Errorf("raw check data should carry all 7 artifacts, got %d", len(data.RawCheckData))
	}
	if !strings.Contains(data.RawCheckData["hotfixes"], "KB5041160") {
		t.Error("raw hotfixes artifact missing from report data")
	}
	if len(data.EvidenceHashes) != 0 {
		t.Errorf("fixture replay should not attest evidence hashes, got %d", len(data.EvidenceHashes))
	}

	runDir := findRunDir(t, cfg.Output.Dir)

	htmlRaw, err := os.ReadFile(filepath.Join(runDir, "report.html"))
	if err != nil {
		t.Fatalf("report.html: %v", err)
	}
	html := string(htmlRaw)
	if !strings.Contains(html, "psentry") {
		t.Error("report.html missing tool name")
	}
	if !strings.Contains(html, "helpdesk7") {
		t.Error("report.html missing log-clear evidence")
	}

	jsonRaw, err := os.ReadFile(filepath.Join(runDir, "report.json"))
	if err != nil {
		t.Fatalf("report.json: %v", err)
	}
	var decoded report.ReportData
	if err := json.Unmarshal(jsonRaw, &decoded); err != nil {
		t.Fatalf("decode report.json: %v", err)
	}
	if decoded.RunID != data.RunID {
		t.Errorf("report.json run_id = %s, want %s", decoded.RunID, data.RunID)
	}

	if _, err := os.Stat(runDir + ".zip"); err != nil {
		t.Errorf("evidence archive missing: %v", err)
	}
}

func TestRun_PartialFixtureReportsGaps(t *testing.T) {
	t.Cleanup(baseline.Reset)
	cfg := testConfig(t)
	fixtureDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(fixtureDir, "hotfixes.json"), []byte(fixtureHotfixes), 0o644); err != nil {
		t.Fatal(err)
	}
	orch := New(cfg, Options{Fixture: fixtureDir, SkipCollect: true, Version: "test"})

	data, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(data.CollectionFailures) != 6 {
		t.Errorf("failures = %d, want 6", len(data.CollectionFailures))
	}
	if len(data.Gaps) != 6 {
		t.Errorf("gaps = %d, want 6", len(data.Gaps))
	}
	for _, f := range data.CollectionFailures {
		if f.Kind != "not_found" {
			t.Errorf("failure kind for %s = %q, want not_found", f.CheckID, f.Kind)
		}
	}
	if !data.Assessment.Incomplete {
		t.Error("assessment should be marked incomplete")
	}
	if data.Patch == nil {
		t.Error("hotfixes evidence should still be evaluated")
	}
}

func TestRun_BaselineSilencesKnownAccount(t *testing.T) {
	t.Cleanup(baseline.Reset)
	cfg := testConfig(t)
	// svc_sql is expected infrastructure on this fixture host.
	cfg.Baseline.KnownAccounts = []string{"svc_sql"}
	fixtureDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(fixtureDir, "ad_accounts.json"), []byte(fixtureADAccounts), 0o644); err != nil {
		t.Fatal(err)
	}
	orch := New(cfg, Options{Fixture: fixtureDir, SkipCollect: true, Only: []string{"ad_accounts"}, Version: "test"})

	data, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, f := range data.Findings {
		if strings.Contains(f.Evidence, "svc_sql") {
			t.Errorf("finding %s raised on baselined account", f.ID)
		}
	}
}

func TestScriptEnv(t *testing.T) {
	cfg := config.Default()
	env := scriptEnv(cfg)

	joined := strings.Join(env, " ")
	if !strings.Contains(joined, "PSENTRY_LOOKBACK_HOURS=72") {
		t.Errorf("lookback missing: %v", env)
	}
	if !strings.Contains(joined, "PSENTRY_MAX_EVENTS=2000") {
		t.Errorf("max events missing: %v", env)
	}
}

func TestPatchStatus(t *testing.T) {
	inv := &patch.Inventory{
		OS:            patch.OSInfo{CurrentBuild: "20348", UBR: 2655},
		PendingReboot: true,
		Hotfixes: []patch.Hotfix{
			{HotfixID: "KB5039227", InstalledOn: "2024-06-11T00:00:00Z"},
			{HotfixID: "KB5041160", InstalledOn: "2024-08-13T00:00:00Z"},
		},
	}
	st := patchStatus(inv)

	if st.Build != "20348.2655" {
		t.Errorf("Build = %s", st.Build)
	}
	if st.NewestHotfix != "KB5041160" {
		t.Errorf("NewestHotfix = %s", st.NewestHotfix)
	}
	if st.AgeDays <= 0 {
		t.Errorf("AgeDays = %d, want positive", st.AgeDays)
	}
	if !st.PendingReboot {
		t.Error("PendingReboot lost")
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
