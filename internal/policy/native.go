package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/psentry/psentry/internal/logging"
	"github.com/psentry/psentry/internal/report"
)

// Snapshot bundles the natively collected policy evidence. It is saved to
// the evidence directory alongside the script outputs.
type Snapshot struct {
	Collected  bool            `json:"collected"`
	Hardening  HardeningState  `json:"hardening"`
	Security   *SecurityPolicy `json:"security,omitempty"`
	AuditRules []AuditSetting  `json:"audit,omitempty"`
}

// CollectNative gathers the policy evidence that comes from OS tools rather
// than the collection scripts: registry hardening switches, the secedit
// account policy export, and the auditpol subcategory table. Partial results
// are normal; a host that blocks secedit still yields the registry probes.
func CollectNative(ctx context.Context) Snapshot {
	if runtime.GOOS != "windows" {
		return Snapshot{}
	}
	log := logging.L()
	snap := Snapshot{Collected: true, Hardening: ReadHardeningState()}

	if pol, err := exportSecurityPolicy(ctx); err != nil {
		log.Warn().Err(err).Msg("secedit export unavailable")
	} else {
		snap.Security = pol
	}

	if rules, err := readAuditPolicy(ctx); err != nil {
		log.Warn().Err(err).Msg("auditpol unavailable")
	} else {
		snap.AuditRules = rules
	}
	return snap
}

// Evaluate runs every native-policy evaluation over the snapshot.
func (s Snapshot) Evaluate() []report.Finding {
	if !s.Collected {
		return nil
	}
	var findings []report.Finding
	findings = append(findings, EvaluateHardening(s.Hardening)...)
	findings = append(findings, EvaluateSecurityPolicy(s.Security)...)
	findings = append(findings, EvaluateAuditPolicy(s.AuditRules)...)
	return findings
}

func exportSecurityPolicy(ctx context.Context) (*SecurityPolicy, error) {
	dir, err := os.MkdirTemp("", "psentry-secedit-*")
	if err != nil {
		return nil, fmt.Errorf("secedit temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	cfgPath := filepath.Join(dir, "export.inf")
	cmd := exec.CommandContext(ctx, systemTool("secedit.exe"), "/export", "/cfg", cfgPath, "/quiet")
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("secedit /export: %w (%s)", err, firstLine(out))
	}

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("read secedit export: %w", err)
	}
	return ParseSeceditExport(data)
}

func readAuditPolicy(ctx context.Context) ([]AuditSetting, error) {
	cmd := exec.CommandContext(ctx, systemTool("auditpol.exe"), "/get", "/category:*", "/r")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("auditpol /get: %w", err)
	}
	return ParseAuditPolicyCSV(out)
}

func firstLine(out []byte) string {
	for i, b := range out {
		if b == '\n' || b == '\r' {
			return string(out[:i])
		}
	}
	return string(out)
}

// MarshalEvidence renders the snapshot for the evidence directory.
func (s Snapshot) MarshalEvidence() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
