package report

// CollectionFailure records one check that produced no usable evidence.
// Kind carries the runner's failure classification as a string so report
// rendering stays decoupled from the collector types.
type CollectionFailure struct {
	CheckID   string `json:"check_id"`
	CheckName string `json:"check_name"`
	Kind      string `json:"kind"`
	Detail    string `json:"detail,omitempty"`
}

// Gap describes what the triage loses when a check fails to collect.
type Gap struct {
	CheckID string `json:"check_id"`
	Kind    string `json:"kind"`
	Detail  string `json:"detail,omitempty"`
	Impact  string `json:"impact"`
}

// checkGapImpact maps each check to the blind spot its failure leaves.
var checkGapImpact = map[string]string{
	"security_events":     "Logon, privilege, and account management events were not reviewed; audit tampering would go unseen.",
	"scriptblock_logs":    "Script block contents were not scanned; fileless PowerShell activity cannot be ruled out.",
	"local_accounts":      "Local accounts and Administrators membership were not reviewed.",
	"ad_accounts":         "Domain account exposure (stale, kerberoastable, privileged) was not assessed.",
	"hotfixes":            "Patch level is unknown; the host may be missing exploitable updates.",
	"powershell_security": "PowerShell hardening state (logging, AMSI, v2 engine) is unknown.",
	"jea_endpoints":       "Remoting endpoint configuration was not reviewed; an overbroad admin surface may exist.",
}

// GapsFromFailures converts collection failures into evidence gaps. Unknown
// check IDs still produce a gap with a generic impact line.
func GapsFromFailures(failures []CollectionFailure) []Gap {
	gaps := make([]Gap, 0, len(failures))
	for _, f := range failures {
		impact, ok := checkGapImpact[f.CheckID]
		if !ok {
			impact = "Evidence from this check is missing."
		}
		gaps = append(gaps, Gap{
			CheckID: f.CheckID,
			Kind:    f.Kind,
			Detail:  f.Detail,
			Impact:  impact,
		})
	}
	return gaps
}
