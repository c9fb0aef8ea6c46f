// Package accounts parses the local and Active Directory account inventories
// and raises findings on the exposure patterns they reveal.
package accounts

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LocalAccount is one Win32_UserAccount entry from the local_accounts check.
type LocalAccount struct {
	Name                 string `json:"name"`
	FullName             string `json:"full_name"`
	SID                  string `json:"sid"`
	Enabled              bool   `json:"enabled"`
	LockedOut            bool   `json:"locked_out"`
	PasswordRequired     bool   `json:"password_required"`
	PasswordChangeable   bool   `json:"password_changeable"`
	PasswordNeverExpires bool   `json:"password_never_expires"`
	Description          string `json:"description"`
}

// IsBuiltinAdministrator reports whether this is the RID 500 account.
func (a LocalAccount) IsBuiltinAdministrator() bool {
	return strings.HasSuffix(a.SID, "-500")
}

// IsGuest reports whether this is the RID 501 account.
func (a LocalAccount) IsGuest() bool {
	return strings.HasSuffix(a.SID, "-501")
}

// AdminMember is one member of the BUILTIN\Administrators group.
type AdminMember struct {
	Name            string `json:"name"`
	ObjectClass     string `json:"object_class"`
	PrincipalSource string `json:"principal_source"`
	SID             string `json:"sid"`
}

// LocalAccounts is the full local_accounts check document.
type LocalAccounts struct {
	Check          string         `json:"check"`
	CollectedAt    string         `json:"collected_at"`
	Computer       string         `json:"computer"`
	Accounts       []LocalAccount `json:"accounts"`
	Administrators []AdminMember  `json:"administrators"`
}

// ParseLocalAccounts decodes local_accounts check output.
func ParseLocalAccounts(data []byte) (*LocalAccounts, error) {
	var doc LocalAccounts
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse local_accounts output: %w", err)
	}
	if doc.Check != "local_accounts" {
		return nil, fmt.Errorf("local_accounts output carries check id %q", doc.Check)
	}
	return &doc, nil
}

// ADAccount is one merged directory entry from the ad_accounts check.
type ADAccount struct {
	SamAccountName       string   `json:"sam_account_name"`
	DisplayName          string   `json:"display_name"`
	Enabled              bool     `json:"enabled"`
	PasswordNeverExpires bool     `json:"password_never_expires"`
	AdminCount           int      `json:"admin_count"`
	SPNs                 []string `json:"spns"`
	LastLogon            string   `json:"last_logon"`
	PwdLastSet           string   `json:"pwd_last_set"`
	PrivilegedGroups     []string `json:"privileged_groups"`
}

// Privileged reports whether the account sits in any privileged group.
func (a ADAccount) Privileged() bool {
	return len(a.PrivilegedGroups) > 0
}

// Kerberoastable reports whether the account exposes SPNs an attacker can
// request tickets for. krbtgt is filtered at collection time.
func (a ADAccount) Kerberoastable() bool {
	return a.Enabled && len(a.SPNs) > 0
}

// DomainInfo identifies the joined domain.
type DomainInfo struct {
	Name        string `json:"name"`
	Forest      string `json:"forest"`
	LogonServer string `json:"logon_server"`
}

// ADAccounts is the full ad_accounts check document.
type ADAccounts struct {
	Check        string      `json:"check"`
	CollectedAt  string      `json:"collected_at"`
	Computer     string      `json:"computer"`
	DomainJoined bool        `json:"domain_joined"`
	Domain       DomainInfo  `json:"domain"`
	Accounts     []ADAccount `json:"accounts"`
}

// ParseADAccounts decodes ad_accounts check output.
func ParseADAccounts(data []byte) (*ADAccounts, error) {
	var doc ADAccounts
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse ad_accounts output: %w", err)
	}
	if doc.Check != "ad_accounts" {
		return nil, fmt.Errorf("ad_accounts output carries check id %q", doc.Check)
	}
	return &doc, nil
}

// parseTime accepts the round-trip timestamps the scripts emit plus the
// legacy /Date(ms)/ form found in fixtures captured by other tooling.
func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if rest, ok := strings.CutPrefix(s, "/Date("); ok {
		if num, ok := strings.CutSuffix(rest, ")/"); ok {
			if ms, err := strconv.ParseInt(num, 10, 64); err == nil {
				return time.UnixMilli(ms).UTC(), true
			}
		}
	}
	return time.Time{}, false
}
