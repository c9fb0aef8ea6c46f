package collector

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNewWriter_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "output", "2026-08-25T10-00-00")
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if w.OutputDir() != dir {
		t.Errorf("OutputDir() = %q, want %q", w.OutputDir(), dir)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("run directory not created: %v", err)
	}
}

// Stdout and stderr land in separate files: the .json is the evidence
// document, the .log carries the script's diagnostics.
func TestWriter_SaveResult(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}

	doc := `{"check":"security_events","events":[]}`
	result := Result{
		CheckID: "security_events",
		Stdout:  []byte(doc),
		Stderr:  []byte("WARNING: log info unavailable for Setup\n"),
	}
	if err := w.SaveResult(result); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "security_events.json"))
	if err != nil {
		t.Fatalf("read evidence: %v", err)
	}
	if string(data) != doc {
		t.Errorf("evidence content = %q", data)
	}

	logData, err := os.ReadFile(filepath.Join(dir, "security_events.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(logData) != "WARNING: log info unavailable for Setup\n" {
		t.Errorf("log content = %q", logData)
	}

	// Both files must appear in the hash list with correct digests.
	hashes := w.Hashes()
	if len(hashes) != 2 {
		t.Fatalf("got %d hashes, want 2", len(hashes))
	}
	want := sha256.Sum256([]byte(doc))
	if hashes[0].SHA256 != hex.EncodeToString(want[:]) {
		t.Errorf("evidence hash = %s", hashes[0].SHA256)
	}
	if hashes[0].Size != len(doc) {
		t.Errorf("evidence size = %d, want %d", hashes[0].Size, len(doc))
	}
}

func TestWriter_SaveResult_NoStderr(t *testing.T) {
	dir := t.TempDir()
	w, _ := NewWriter(dir)

	if err := w.SaveResult(Result{CheckID: "hotfixes", Stdout: []byte(`{}`)}); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "hotfixes.json")); err != nil {
		t.Error("evidence file missing")
	}
	if _, err := os.Stat(filepath.Join(dir, "hotfixes.log")); err == nil {
		t.Error("no .log expected when stderr is empty")
	}
}

// policy.json, collected natively rather than by a script, goes through the
// same hash discipline.
func TestWriter_SaveArtifact(t *testing.T) {
	dir := t.TempDir()
	w, _ := NewWriter(dir)

	data := []byte(`{"collected":true,"hardening":{}}`)
	if err := w.SaveArtifact("policy.json", data); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "policy.json"))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("artifact content = %q", got)
	}

	hashes := w.Hashes()
	if len(hashes) != 1 || hashes[0].File != "policy.json" {
		t.Errorf("artifact not hashed, got %v", hashes)
	}
}

func TestWriter_SaveArtifact_EmptySkipped(t *testing.T) {
	dir := t.TempDir()
	w, _ := NewWriter(dir)

	if err := w.SaveArtifact("policy.json", nil); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "policy.json")); err == nil {
		t.Error("empty artifact should not create a file")
	}
	if len(w.Hashes()) != 0 {
		t.Error("empty artifact should not be hashed")
	}
}

// Collect saves from one goroutine per check; the accumulated hash list must
// not lose entries under concurrency.
func TestWriter_ConcurrentSaves(t *testing.T) {
	dir := t.TempDir()
	w, _ := NewWriter(dir)

	checkIDs := []string{
		"security_events", "scriptblock_logs", "local_accounts",
		"ad_accounts", "hotfixes", "powershell_security", "jea_endpoints",
	}
	var wg sync.WaitGroup
	for _, id := range checkIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r := Result{CheckID: id, Stdout: []byte(fmt.Sprintf(`{"check":%q}`, id))}
			if err := w.SaveResult(r); err != nil {
				t.Errorf("SaveResult %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	if got := len(w.Hashes()); got != len(checkIDs) {
		t.Errorf("got %d hashes, want %d", got, len(checkIDs))
	}
}

func TestWriter_SaveMeta(t *testing.T) {
	dir := t.TempDir()
	w, _ := NewWriter(dir)

	meta := CollectionMeta{
		RunID:       "7d9f4a1e-0000-0000-0000-000000000000",
		Hostname:    "WEB-01",
		MachineID:   "a1b2c3",
		OS:          "windows",
		StartedAt:   time.Now().UTC(),
		CompletedAt: time.Now().UTC(),
		Duration:    "5s",
		TotalChecks: 2,
		Succeeded:   1,
		Failed:      1,
		Checks: []CheckMeta{
			{ID: "security_events", Duration: "2s", ExitCode: 0, HasOutput: true},
			{ID: "jea_endpoints", Duration: "3s", ExitCode: 1, Error: "access denied", FailureKind: "permission_denied"},
		},
	}
	if err := w.SaveMeta(meta); err != nil {
		t.Fatalf("SaveMeta: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "collection_meta.json"))
	if err != nil {
		t.Fatal(err)
	}
	var loaded CollectionMeta
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal meta: %v", err)
	}
	if loaded.RunID != meta.RunID || loaded.MachineID != "a1b2c3" {
		t.Errorf("identity fields lost: %+v", loaded)
	}
	if len(loaded.Checks) != 2 || loaded.Checks[1].FailureKind != "permission_denied" {
		t.Errorf("check metadata lost: %+v", loaded.Checks)
	}
}

func TestWriter_SaveManifest(t *testing.T) {
	dir := t.TempDir()
	w, _ := NewWriter(dir)

	if err := w.SaveResult(Result{CheckID: "local_accounts", Stdout: []byte(`{"accounts":[]}`)}); err != nil {
		t.Fatal(err)
	}
	if err := w.SaveManifest("run-123", "DC-01"); err != nil {
		t.Fatalf("SaveManifest: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		t.Fatal(err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if manifest.RunID != "run-123" || manifest.Hostname != "DC-01" {
		t.Errorf("manifest header = %+v", manifest)
	}
	if len(manifest.Files) != 1 || manifest.Files[0].File != "local_accounts.json" {
		t.Errorf("manifest files = %+v", manifest.Files)
	}
	if manifest.Files[0].SHA256 == "" {
		t.Error("manifest entry missing its hash")
	}
}

func TestGenerateOutputDir(t *testing.T) {
	dir := GenerateOutputDir("output")
	if dir == "output" {
		t.Error("run directory should carry a timestamp")
	}
	if filepath.Dir(dir) != "output" {
		t.Errorf("dir = %q, want it under output/", dir)
	}
}
