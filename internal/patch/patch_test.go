package patch

import (
	"strings"
	"testing"
	"time"

	"github.com/psentry/psentry/internal/report"
)

var evalNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

const sampleInventoryJSON = `{
  "check": "hotfixes",
  "collected_at": "2026-08-24T10:00:00.0000000Z",
  "computer": "WS-FINANCE-07",
  "os": {
    "product_name": "Windows 11 Enterprise",
    "display_version": "23H2",
    "current_build": "22631",
    "ubr": 4037
  },
  "pending_reboot": true,
  "reboot_reasons": ["windows_update"],
  "hotfixes": [
    {
      "hotfix_id": "KB5041585",
      "description": "Security Update",
      "installed_on": "2026-08-14T00:00:00.0000000Z",
      "installed_by": "NT AUTHORITY\\SYSTEM"
    },
    {
      "hotfix_id": "KB5011048",
      "description": "Update",
      "installed_on": "",
      "installed_by": ""
    }
  ]
}`

func TestParseInventory(t *testing.T) {
	inv, err := ParseInventory([]byte(sampleInventoryJSON))
	if err != nil {
		t.Fatalf("ParseInventory: %v", err)
	}
	if inv.OS.Build() != "22631.4037" {
		t.Errorf("build = %q, want 22631.4037", inv.OS.Build())
	}
	if !inv.PendingReboot || len(inv.RebootReasons) != 1 {
		t.Errorf("reboot state = %v %v", inv.PendingReboot, inv.RebootReasons)
	}

	newest, ok := inv.Newest()
	if !ok {
		t.Fatal("Newest found nothing despite a dated hotfix")
	}
	if newest.HotfixID != "KB5041585" {
		t.Errorf("newest = %s, want KB5041585", newest.HotfixID)
	}

	if _, err := ParseInventory([]byte(`{"check":"local_accounts"}`)); err == nil {
		t.Error("mismatched check id accepted")
	}
}

func TestHotfixTime_LegacyDateFormat(t *testing.T) {
	h := Hotfix{InstalledOn: "/Date(1755129600000)/"}
	if h.Time().IsZero() {
		t.Error("legacy /Date(ms)/ timestamp did not parse")
	}
	if got := (Hotfix{InstalledOn: ""}).Time(); !got.IsZero() {
		t.Errorf("empty timestamp parsed to %v", got)
	}
}

func TestEvaluate_CurrentHostQuiet(t *testing.T) {
	inv := &Inventory{
		Check: "hotfixes",
		Hotfixes: []Hotfix{{
			HotfixID:    "KB5041585",
			InstalledOn: evalNow.AddDate(0, 0, -10).Format(time.RFC3339),
		}},
	}
	if findings := Evaluate(inv, 60, evalNow); len(findings) != 0 {
		t.Errorf("current host produced findings: %+v", findings)
	}
}

func TestEvaluate_StalePatches(t *testing.T) {
	inv := &Inventory{
		OS: OSInfo{CurrentBuild: "22631", UBR: 3000},
		Hotfixes: []Hotfix{{
			HotfixID:    "KB5030219",
			InstalledOn: evalNow.AddDate(0, 0, -120).Format(time.RFC3339),
		}},
	}

	findings := Evaluate(inv, 60, evalNow)
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1: %+v", len(findings), findings)
	}
	f := findings[0]
	if f.ID != "PATCH-002" || f.Severity != report.SeverityHigh {
		t.Errorf("finding = %s/%v, want PATCH-002/high", f.ID, f.Severity)
	}
	if !strings.Contains(f.Description, "120 days") {
		t.Errorf("description = %q", f.Description)
	}
}

func TestEvaluate_EmptyInventory(t *testing.T) {
	inv := &Inventory{OS: OSInfo{CurrentBuild: "22631", UBR: 4037}}
	findings := Evaluate(inv, 60, evalNow)
	f := findings[0]
	if f.ID != "PATCH-001" || f.Severity != report.SeverityMedium {
		t.Errorf("finding = %s/%v, want PATCH-001/medium", f.ID, f.Severity)
	}
}

func TestEvaluate_PendingReboot(t *testing.T) {
	inv := &Inventory{
		PendingReboot: true,
		RebootReasons: []string{"component_based_servicing", "pending_file_rename"},
		Hotfixes: []Hotfix{{
			HotfixID:    "KB5041585",
			InstalledOn: evalNow.AddDate(0, 0, -5).Format(time.RFC3339),
		}},
	}

	findings := Evaluate(inv, 60, evalNow)
	if len(findings) != 1 || findings[0].ID != "PATCH-003" {
		t.Fatalf("findings = %+v, want single PATCH-003", findings)
	}
	if !strings.Contains(findings[0].Evidence, "component_based_servicing") {
		t.Errorf("evidence = %q", findings[0].Evidence)
	}
}
