package accounts

import (
	"strings"
	"testing"
	"time"

	"github.com/psentry/psentry/internal/baseline"
	"github.com/psentry/psentry/internal/report"
)

var evalNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func findingByID(findings []report.Finding, id string) *report.Finding {
	for i := range findings {
		if findings[i].ID == id {
			return &findings[i]
		}
	}
	return nil
}

func TestEvaluateLocal_GuestEnabled(t *testing.T) {
	doc := &LocalAccounts{Accounts: []LocalAccount{{
		Name:             "Guest",
		SID:              "S-1-5-21-1-2-3-501",
		Enabled:          true,
		PasswordRequired: true,
	}}}
	f := findingByID(EvaluateLocal(doc), "ACC-001")
	if f == nil {
		t.Fatal("no ACC-001 for enabled Guest")
	}
	if f.Severity != report.SeverityHigh {
		t.Errorf("severity = %v, want high", f.Severity)
	}

	doc.Accounts[0].Enabled = false
	if findingByID(EvaluateLocal(doc), "ACC-001") != nil {
		t.Error("ACC-001 raised for disabled Guest")
	}
}

func TestEvaluateLocal_NoPasswordRequired(t *testing.T) {
	doc := &LocalAccounts{Accounts: []LocalAccount{{
		Name:    "kiosk",
		SID:     "S-1-5-21-1-2-3-1002",
		Enabled: true,
	}}}
	if findingByID(EvaluateLocal(doc), "ACC-002") == nil {
		t.Error("no ACC-002 for enabled account without password requirement")
	}
}

func TestEvaluateLocal_NeverExpiresAggregated(t *testing.T) {
	doc := &LocalAccounts{Accounts: []LocalAccount{
		{Name: "svc_backup", SID: "S-1-5-21-1-2-3-1003", Enabled: true, PasswordRequired: true, PasswordNeverExpires: true},
		{Name: "svc_print", SID: "S-1-5-21-1-2-3-1004", Enabled: true, PasswordRequired: true, PasswordNeverExpires: true},
		// The built-in Administrator always has this flag; not noteworthy.
		{Name: "Administrator", SID: "S-1-5-21-1-2-3-500", Enabled: true, PasswordRequired: true, PasswordNeverExpires: true},
	}}

	f := findingByID(EvaluateLocal(doc), "ACC-003")
	if f == nil {
		t.Fatal("no ACC-003 aggregate finding")
	}
	if !strings.Contains(f.Evidence, "svc_backup") || !strings.Contains(f.Evidence, "svc_print") {
		t.Errorf("evidence = %q", f.Evidence)
	}
	if strings.Contains(f.Evidence, "Administrator") {
		t.Errorf("built-in Administrator listed in ACC-003: %q", f.Evidence)
	}
}

func TestEvaluateLocal_BaselineSuppressesKnownAccounts(t *testing.T) {
	baseline.AddKnownAccount("svc_backup")
	defer baseline.Reset()

	doc := &LocalAccounts{Accounts: []LocalAccount{{
		Name: "svc_backup", SID: "S-1-5-21-1-2-3-1003",
		Enabled: true, PasswordRequired: true, PasswordNeverExpires: true,
	}}}
	if findingByID(EvaluateLocal(doc), "ACC-003") != nil {
		t.Error("baseline-known account still raised ACC-003")
	}
}

func TestEvaluateLocal_AdminGroupSize(t *testing.T) {
	doc := &LocalAccounts{}
	for i := 0; i < adminGroupThreshold+1; i++ {
		doc.Administrators = append(doc.Administrators, AdminMember{
			Name:        "CORP\\admin" + string(rune('a'+i)),
			ObjectClass: "User",
		})
	}
	f := findingByID(EvaluateLocal(doc), "ACC-004")
	if f == nil {
		t.Fatal("no ACC-004 for oversized Administrators group")
	}
	if f.Severity != report.SeverityMedium {
		t.Errorf("severity = %v, want medium", f.Severity)
	}

	doc.Administrators = doc.Administrators[:adminGroupThreshold]
	if findingByID(EvaluateLocal(doc), "ACC-004") != nil {
		t.Error("ACC-004 raised at the threshold")
	}
}

func TestEvaluateAD_WorkgroupHostQuiet(t *testing.T) {
	doc := &ADAccounts{DomainJoined: false}
	if findings := EvaluateAD(doc, evalNow); len(findings) != 0 {
		t.Errorf("workgroup host produced findings: %+v", findings)
	}
}

func TestEvaluateAD_Kerberoastable(t *testing.T) {
	doc := &ADAccounts{DomainJoined: true, Accounts: []ADAccount{{
		SamAccountName: "sql_svc",
		Enabled:        true,
		SPNs:           []string{"MSSQLSvc/db01.corp.example:1433"},
	}}}
	f := findingByID(EvaluateAD(doc, evalNow), "ACC-101")
	if f == nil {
		t.Fatal("no ACC-101 for kerberoastable account")
	}
	if f.Severity != report.SeverityHigh {
		t.Errorf("severity = %v, want high", f.Severity)
	}
	if !strings.Contains(f.Evidence, "sql_svc") {
		t.Errorf("evidence = %q", f.Evidence)
	}
}

func TestEvaluateAD_StalePrivileged(t *testing.T) {
	doc := &ADAccounts{DomainJoined: true, Accounts: []ADAccount{
		{
			SamAccountName:   "old_admin",
			Enabled:          true,
			PrivilegedGroups: []string{"Domain Admins"},
			LastLogon:        evalNow.AddDate(0, 0, -(staleLogonDays + 30)).Format(time.RFC3339),
		},
		{
			SamAccountName:   "active_admin",
			Enabled:          true,
			PrivilegedGroups: []string{"Domain Admins"},
			LastLogon:        evalNow.AddDate(0, 0, -3).Format(time.RFC3339),
		},
	}}

	f := findingByID(EvaluateAD(doc, evalNow), "ACC-102")
	if f == nil {
		t.Fatal("no ACC-102 for stale privileged account")
	}
	if !strings.Contains(f.Evidence, "old_admin") {
		t.Errorf("evidence = %q", f.Evidence)
	}
	if strings.Contains(f.Evidence, "active_admin") {
		t.Errorf("recently used admin flagged stale: %q", f.Evidence)
	}
}

func TestEvaluateAD_PrivilegedNeverExpires(t *testing.T) {
	doc := &ADAccounts{DomainJoined: true, Accounts: []ADAccount{{
		SamAccountName:       "da_svc",
		Enabled:              true,
		PasswordNeverExpires: true,
		PrivilegedGroups:     []string{"Domain Admins"},
	}}}
	f := findingByID(EvaluateAD(doc, evalNow), "ACC-103")
	if f == nil {
		t.Fatal("no ACC-103 for privileged non-expiring password")
	}
	if f.Severity != report.SeverityHigh {
		t.Errorf("severity = %v, want high", f.Severity)
	}
}

func TestEvaluateAD_AdminCountResidue(t *testing.T) {
	doc := &ADAccounts{DomainJoined: true, Accounts: []ADAccount{{
		SamAccountName: "ex_admin",
		Enabled:        true,
		AdminCount:     1,
	}}}
	if findingByID(EvaluateAD(doc, evalNow), "ACC-104") == nil {
		t.Error("no ACC-104 for orphaned adminCount")
	}
}

func TestEvaluateAD_DisabledPrivileged(t *testing.T) {
	doc := &ADAccounts{DomainJoined: true, Accounts: []ADAccount{{
		SamAccountName:   "parked_admin",
		Enabled:          false,
		PrivilegedGroups: []string{"Enterprise Admins"},
	}}}
	if findingByID(EvaluateAD(doc, evalNow), "ACC-105") == nil {
		t.Error("no ACC-105 for disabled privileged account")
	}
}

func TestEvaluateAD_BaselineSuppression(t *testing.T) {
	baseline.AddKnownAccount("sql_svc")
	defer baseline.Reset()

	doc := &ADAccounts{DomainJoined: true, Accounts: []ADAccount{{
		SamAccountName: "sql_svc",
		Enabled:        true,
		SPNs:           []string{"MSSQLSvc/db01:1433"},
	}}}
	if findingByID(EvaluateAD(doc, evalNow), "ACC-101") != nil {
		t.Error("baseline-known account still raised ACC-101")
	}
}
