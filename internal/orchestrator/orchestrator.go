// Package orchestrator coordinates the collect → evaluate → report pipeline.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"

	"github.com/psentry/psentry/internal/accounts"
	"github.com/psentry/psentry/internal/baseline"
	"github.com/psentry/psentry/internal/browser"
	"github.com/psentry/psentry/internal/collector"
	"github.com/psentry/psentry/internal/config"
	"github.com/psentry/psentry/internal/eventlog"
	"github.com/psentry/psentry/internal/jea"
	"github.com/psentry/psentry/internal/logging"
	"github.com/psentry/psentry/internal/patch"
	"github.com/psentry/psentry/internal/platform"
	"github.com/psentry/psentry/internal/policy"
	"github.com/psentry/psentry/internal/report"
	"github.com/psentry/psentry/internal/server"
	"github.com/psentry/psentry/internal/sigma"
	"github.com/psentry/psentry/internal/threat"
	"github.com/psentry/psentry/scripts"
)

// Options controls a single run.
type Options struct {
	// CollectOnly stops after evidence collection; no evaluation or report.
	CollectOnly bool
	// Only restricts the run to the named check IDs.
	Only []string
	// Fixture replays previously collected evidence from a directory
	// instead of running the collection scripts.
	Fixture string
	// SkipCollect suppresses live collection; requires Fixture.
	SkipCollect bool
	// Serve starts a local HTTP server with the report after the run.
	Serve bool
	// Port is the serve port.
	Port int
	// Version is the build version stamped into reports.
	Version string
}

// Orchestrator runs the full triage pipeline.
type Orchestrator struct {
	cfg    *config.Config
	opts   Options
	checks []platform.Check
}

// New prepares an orchestrator: resolves the check list for this platform
// and primes the baseline with configured accounts, paths, and addresses.
func New(cfg *config.Config, opts Options) *Orchestrator {
	checks := platform.GetChecks()
	if opts.Fixture != "" {
		// Fixture replay evaluates Windows evidence regardless of the
		// OS the tool runs on.
		checks = platform.WindowsChecks()
	}
	checks = platform.FilterEnabled(checks, cfg.Checks)
	checks = platform.FilterChecks(checks, opts.Only)

	registerBaseline(cfg)
	registerHostIPs()

	return &Orchestrator{cfg: cfg, opts: opts, checks: checks}
}

// registerBaseline loads the configured known accounts, script paths, and
// management addresses into the suppression baseline.
func registerBaseline(cfg *config.Config) {
	for _, name := range cfg.Baseline.KnownAccounts {
		baseline.AddKnownAccount(name)
	}
	for _, path := range cfg.Baseline.KnownPaths {
		baseline.AddKnownPath(path)
	}
	for _, addr := range cfg.Baseline.KnownIPs {
		baseline.AddKnownIP(addr)
	}
}

// registerHostIPs adds the host's own interface addresses to the known-IP
// baseline so the machine's own traffic is not reported as external.
func registerHostIPs() {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return
	}
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsUnspecified() {
			continue
		}
		baseline.AddKnownIP(ip.String())
	}
}

// evidence carries the display summaries and scan inputs that fall out of
// check evaluation alongside the findings.
type evidence struct {
	logons  *report.LogonActivity
	patch   *report.PatchStatus
	scripts []threat.Script
}

// Run executes the pipeline: collect (or replay), evaluate each check,
// scan script blocks, match Sigma rules, and render the report. The
// returned data lets the caller map the verdict to an exit code.
func (o *Orchestrator) Run(ctx context.Context) (*report.ReportData, error) {
	if o.opts.SkipCollect && o.opts.Fixture == "" {
		return nil, fmt.Errorf("skip-collect requires a fixture directory")
	}
	if len(o.checks) == 0 {
		return nil, fmt.Errorf("no checks to run: live collection is Windows-only; use --fixture to replay collected evidence")
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	osName := platform.DetectOS()
	runID := uuid.NewString()
	hostID, err := machineid.ProtectedID("psentry")
	if err != nil {
		logging.L().Debug().Err(err).Msg("machine id unavailable")
		hostID = ""
	}
	outputDir := collector.GenerateOutputDir(o.cfg.Output.Dir)

	fmt.Fprintf(os.Stderr, "[*] psentry %s — run %s on %s\n", o.opts.Version, runID[:8], hostname)

	// Stage 1: collect evidence.
	collectStart := time.Now()
	var results []collector.Result
	var evidenceHashes []report.EvidenceHash
	fixtureMode := o.opts.Fixture != ""
	if fixtureMode {
		fmt.Fprintf(os.Stderr, "[*] Replaying evidence from %s\n", o.opts.Fixture)
		results, err = collector.LoadFixtures(o.opts.Fixture, o.checks)
		if err != nil {
			return nil, fmt.Errorf("load fixtures: %w", err)
		}
	} else {
		var hashes []collector.FileHash
		results, hashes, err = o.collectLive(ctx, outputDir, runID, hostID, hostname, osName, collectStart)
		if err != nil {
			return nil, err
		}
		for _, h := range hashes {
			evidenceHashes = append(evidenceHashes, report.EvidenceHash{
				File:   h.File,
				SHA256: h.SHA256,
				Size:   h.Size,
			})
		}
	}
	collectDuration := time.Since(collectStart)

	if o.opts.CollectOnly {
		if fixtureMode {
			fmt.Fprintln(os.Stderr, "[*] Collection-only run with a fixture: nothing to collect")
		} else {
			fmt.Fprintf(os.Stderr, "[*] Collection finished; raw evidence in %s\n", outputDir)
		}
		return nil, nil
	}

	// Stage 2: evaluate.
	fmt.Fprintf(os.Stderr, "[*] Evaluating %d check result(s)\n", len(results))
	analysisStart := time.Now()

	checkNames := make(map[string]string, len(o.checks))
	for _, c := range o.checks {
		checkNames[c.ID] = c.Name
	}

	rawCheckData := make(map[string]string, len(results))
	for _, r := range results {
		if len(r.Stdout) > 0 {
			rawCheckData[r.CheckID] = string(r.Stdout)
		}
	}

	var (
		findings []report.Finding
		failures []report.CollectionFailure
		ev       evidence
	)
	for _, r := range results {
		if r.Error != nil {
			failures = append(failures, report.CollectionFailure{
				CheckID:   r.CheckID,
				CheckName: checkNames[r.CheckID],
				Kind:      r.FailureKind.String(),
				Detail:    r.Error.Error(),
			})
			continue
		}
		fs, err := o.evaluateResult(r, &ev)
		if err != nil {
			logging.L().Warn().Str("check", r.CheckID).Err(err).Msg("evaluate check output")
			failures = append(failures, report.CollectionFailure{
				CheckID:   r.CheckID,
				CheckName: checkNames[r.CheckID],
				Kind:      "invalid_output",
				Detail:    err.Error(),
			})
			continue
		}
		findings = append(findings, fs...)
	}

	// Native policy probes only run on a live host; fixture replay stays
	// deterministic.
	if !fixtureMode {
		snap := policy.CollectNative(ctx)
		if snap.Collected {
			findings = append(findings, snap.Evaluate()...)
		}
	}

	scanReport, err := o.scanScripts(ctx, ev.scripts)
	if err != nil {
		return nil, err
	}
	sigmaMatches, err := o.matchSigma(ctx, results)
	if err != nil {
		return nil, err
	}

	gaps := report.GapsFromFailures(failures)

	minSev, err := threat.ParseSeverity(o.cfg.Scan.MinSeverity)
	if err != nil {
		minSev = threat.SeverityLow
	}
	findings = report.FilterMinSeverity(findings, minSev)
	report.Sort(findings)

	assessment := report.Assess(findings, scanReport, gaps)
	analysisDuration := time.Since(analysisStart)

	data := report.ReportData{
		Hostname:           hostname,
		OS:                 osName,
		RunID:              runID,
		HostID:             hostID,
		GeneratedAt:        time.Now().UTC(),
		Version:            o.opts.Version,
		LookbackHours:      o.cfg.Scan.LookbackHours,
		Assessment:         assessment,
		TotalChecks:        len(o.checks),
		Findings:           findings,
		Scan:               scanReport,
		SigmaMatches:       sigmaMatches,
		Logons:             ev.logons,
		Patch:              ev.patch,
		CollectionFailures: failures,
		Gaps:               gaps,
		EvidenceHashes:     evidenceHashes,
		RawCheckData:       rawCheckData,
		CollectionDuration: collectDuration.Round(time.Millisecond).String(),
		AnalysisDuration:   analysisDuration.Round(time.Millisecond).String(),
	}

	// Stage 3: report.
	if err := o.writeReports(outputDir, data); err != nil {
		return nil, err
	}

	report.Summary(os.Stdout, data)

	archivePath, archiveErr := report.ExportArchive(outputDir, data)
	if archiveErr != nil {
		logging.L().Warn().Err(archiveErr).Msg("export evidence archive")
	} else {
		fmt.Fprintf(os.Stderr, "[*] Evidence archive: %s\n", archivePath)
	}

	if !o.cfg.Output.KeepRaw && !fixtureMode && archiveErr == nil {
		o.removeRaw(outputDir)
	}

	fmt.Fprintf(os.Stderr, "[*] Report written to %s\n", outputDir)

	if o.opts.Serve {
		if err := o.serve(ctx, data, archivePath); err != nil {
			return &data, err
		}
	} else if o.cfg.Output.OpenBrowser && o.cfg.WantsFormat("html") {
		browser.Open(filepath.Join(outputDir, "report.html"))
	}

	return &data, nil
}

// collectLive runs the collection scripts and the native policy probes,
// then seals the run with collection metadata and the hash manifest.
func (o *Orchestrator) collectLive(ctx context.Context, outputDir, runID, hostID, hostname, osName string, startedAt time.Time) ([]collector.Result, []collector.FileHash, error) {
	fmt.Fprintf(os.Stderr, "[*] Collecting evidence: %d check(s)\n", len(o.checks))
	if !platform.IsElevated() {
		var need []string
		for _, c := range o.checks {
			if c.RequiresAdmin {
				need = append(need, c.ID)
			}
		}
		if len(need) > 0 {
			fmt.Fprintf(os.Stderr, "[*] Not elevated: %s may return partial evidence\n", strings.Join(need, ", "))
		}
	}
	writer, err := collector.NewWriter(outputDir)
	if err != nil {
		return nil, nil, fmt.Errorf("create output dir: %w", err)
	}
	coll := collector.New(scripts.WindowsScripts, writer, scriptEnv(o.cfg))
	results := coll.Collect(ctx, o.checks)

	snap := policy.CollectNative(ctx)
	if snap.Collected {
		evidenceJSON, err := snap.MarshalEvidence()
		if err == nil {
			if err := writer.SaveArtifact("policy.json", evidenceJSON); err != nil {
				logging.L().Warn().Err(err).Msg("save policy evidence")
			}
		}
	}

	meta := collector.BuildMeta(hostname, osName, startedAt, results)
	meta.RunID = runID
	meta.MachineID = hostID
	if err := writer.SaveMeta(meta); err != nil {
		logging.L().Warn().Err(err).Msg("save collection metadata")
	}
	if err := writer.SaveManifest(runID, hostname); err != nil {
		logging.L().Warn().Err(err).Msg("save evidence manifest")
	}
	fmt.Fprintf(os.Stderr, "[*] Collection finished: %d/%d checks succeeded\n", meta.Succeeded, meta.TotalChecks)
	return results, writer.Hashes(), nil
}

// evaluateResult dispatches one check's output to its evaluator. Logon and
// patch summaries land in ev for the report header; script blocks queue up
// for the threat scan.
func (o *Orchestrator) evaluateResult(r collector.Result, ev *evidence) ([]report.Finding, error) {
	switch r.CheckID {
	case "security_events":
		doc, err := eventlog.ParseSecurityEvents(r.Stdout)
		if err != nil {
			return nil, err
		}
		// Replayed evidence may have been captured under a wider window
		// than this run's config; bound it the way a live query would be.
		doc.Events = eventlog.Filter(doc.Events, eventlog.FilterOptions{
			Since:     eventlog.AnalysisWindow(doc.Events, time.Duration(o.cfg.Scan.LookbackHours)*time.Hour),
			MaxEvents: o.cfg.Scan.MaxEvents,
		})
		findings := eventlog.EvaluateSecurityEvents(doc)
		findings = append(findings, eventlog.EvaluateLogCapacity(doc.LogInfo)...)
		s := eventlog.SummarizeLogons(doc)
		ev.logons = &report.LogonActivity{
			Successes:       s.Successes,
			Failures:        s.Failures,
			UniqueUsers:     s.UniqueUsers,
			ByLogonType:     s.ByLogonType,
			ExternalSources: s.ExternalSources,
		}
		return findings, nil
	case "scriptblock_logs":
		doc, err := eventlog.ParseScriptBlocks(r.Stdout)
		if err != nil {
			return nil, err
		}
		for _, s := range eventlog.Reassemble(doc.Events) {
			ev.scripts = append(ev.scripts, threat.Script{
				ID:   s.ID,
				Path: s.Path,
				User: s.User,
				Time: s.Time,
				Text: s.Text,
			})
		}
		return nil, nil
	case "local_accounts":
		doc, err := accounts.ParseLocalAccounts(r.Stdout)
		if err != nil {
			return nil, err
		}
		return accounts.EvaluateLocal(doc), nil
	case "ad_accounts":
		doc, err := accounts.ParseADAccounts(r.Stdout)
		if err != nil {
			return nil, err
		}
		return accounts.EvaluateAD(doc, time.Now().UTC()), nil
	case "hotfixes":
		inv, err := patch.ParseInventory(r.Stdout)
		if err != nil {
			return nil, err
		}
		ev.patch = patchStatus(inv)
		return patch.Evaluate(inv, o.cfg.Scan.PatchMaxAgeDays, time.Now().UTC()), nil
	case "powershell_security":
		p, err := policy.ParsePosture(r.Stdout)
		if err != nil {
			return nil, err
		}
		return policy.EvaluatePosture(p), nil
	case "jea_endpoints":
		doc, err := jea.ParseEndpoints(r.Stdout)
		if err != nil {
			return nil, err
		}
		return jea.AuditEndpoints(doc), nil
	default:
		return nil, fmt.Errorf("no evaluator for check %q", r.CheckID)
	}
}

// scanScripts runs the regex threat rules over the reassembled script
// blocks. A missing scriptblock check yields a nil report, not an error.
func (o *Orchestrator) scanScripts(ctx context.Context, scriptBlocks []threat.Script) (*threat.ScanReport, error) {
	if len(scriptBlocks) == 0 {
		return nil, nil
	}
	rules := threat.DefaultRuleset()
	if o.cfg.Rules.CustomPath != "" {
		custom, err := threat.LoadCustomRules(o.cfg.Rules.CustomPath)
		if err != nil {
			logging.L().Warn().Str("path", o.cfg.Rules.CustomPath).Err(err).Msg("load custom rules")
		} else if err := rules.Add(custom...); err != nil {
			logging.L().Warn().Err(err).Msg("register custom rules")
		}
	}
	rules.Disable(o.cfg.Rules.Disabled...)

	fmt.Fprintf(os.Stderr, "[*] Scanning %d script block(s) against %d rule(s)\n", len(scriptBlocks), rules.Len())
	scanReport, err := rules.Scan(ctx, scriptBlocks, threat.ScanOptions{})
	if err != nil {
		return nil, fmt.Errorf("script scan: %w", err)
	}
	return scanReport, nil
}

// matchSigma evaluates the embedded Sigma rules, plus any configured rule
// directory, against the raw check output.
func (o *Orchestrator) matchSigma(ctx context.Context, results []collector.Result) ([]sigma.Match, error) {
	engine, err := sigma.NewDefault()
	if err != nil {
		return nil, fmt.Errorf("load sigma rules: %w", err)
	}
	if o.cfg.Rules.SigmaDir != "" {
		if err := engine.LoadDir(o.cfg.Rules.SigmaDir); err != nil {
			logging.L().Warn().Str("dir", o.cfg.Rules.SigmaDir).Err(err).Msg("load sigma rule dir")
		}
	}
	return engine.MatchAll(ctx, results), nil
}

// writeReports renders the enabled output formats into outputDir.
func (o *Orchestrator) writeReports(outputDir string, data report.ReportData) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if o.cfg.WantsFormat("json") {
		if _, err := report.WriteJSON(data, outputDir); err != nil {
			return fmt.Errorf("write report.json: %w", err)
		}
	}
	if o.cfg.WantsFormat("html") {
		renderer, err := report.NewRenderer()
		if err != nil {
			return fmt.Errorf("report template: %w", err)
		}
		if _, err := renderer.Render(data, outputDir); err != nil {
			return fmt.Errorf("write report.html: %w", err)
		}
	}
	return nil
}

// removeRaw deletes the per-check output files after a successful archive
// export. The reports, collection metadata, and manifest stay behind.
func (o *Orchestrator) removeRaw(outputDir string) {
	names := []string{"policy.json"}
	for _, c := range o.checks {
		names = append(names, c.ID+".json", c.ID+".log")
	}
	for _, name := range names {
		path := filepath.Join(outputDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logging.L().Warn().Str("file", name).Err(err).Msg("remove raw evidence")
		}
	}
}

// serve publishes the rendered report on a local HTTP server until the
// context is cancelled.
func (o *Orchestrator) serve(ctx context.Context, data report.ReportData, archivePath string) error {
	renderer, err := report.NewRenderer()
	if err != nil {
		return fmt.Errorf("report template: %w", err)
	}
	html, err := renderer.RenderString(data)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	reportJSON, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	srv := server.New(html, reportJSON)
	if archivePath != "" {
		srv.SetArchive(archivePath)
	}
	addr, err := srv.Start(o.opts.Port)
	if err != nil {
		return fmt.Errorf("start report server: %w", err)
	}
	url := "http://" + addr
	fmt.Fprintf(os.Stderr, "[*] Serving report at %s (Ctrl-C to stop)\n", url)
	if o.cfg.Output.OpenBrowser {
		browser.Open(url)
	}
	<-ctx.Done()
	srv.Stop()
	return nil
}

// patchStatus condenses the hotfix inventory into the report header block.
func patchStatus(inv *patch.Inventory) *report.PatchStatus {
	st := &report.PatchStatus{
		Build:         inv.OS.Build(),
		PendingReboot: inv.PendingReboot,
	}
	if newest, ok := inv.Newest(); ok {
		st.NewestHotfix = newest.HotfixID
		st.InstalledOn = newest.InstalledOn
		if t := newest.Time(); !t.IsZero() {
			st.AgeDays = int(time.Since(t).Hours() / 24)
		}
	}
	return st
}

// scriptEnv builds the environment the collection scripts read their
// bounds from.
func scriptEnv(cfg *config.Config) []string {
	return []string{
		fmt.Sprintf("PSENTRY_LOOKBACK_HOURS=%d", cfg.Scan.LookbackHours),
		fmt.Sprintf("PSENTRY_MAX_EVENTS=%d", cfg.Scan.MaxEvents),
	}
}
