package collector

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Writer persists evidence under a single run directory. Everything that
// goes through save lands in the hash manifest, so the archive can be
// verified file by file later. Safe for concurrent SaveResult calls.
type Writer struct {
	outputDir string
	mu        sync.Mutex
	hashes    []FileHash // accumulated for manifest.json, in save order
}

// FileHash records the SHA-256 digest of a saved evidence file.
type FileHash struct {
	File   string `json:"file"`
	SHA256 string `json:"sha256"`
	Size   int    `json:"size"`
}

// NewWriter creates a Writer rooted at outputDir, creating it as needed.
func NewWriter(outputDir string) (*Writer, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{outputDir: outputDir}, nil
}

// OutputDir returns the run directory path.
func (w *Writer) OutputDir() string {
	return w.outputDir
}

// SaveResult writes one check's output to disk immediately: stdout to
// {checkID}.json, stderr to {checkID}.log. Both are hashed into the
// manifest.
func (w *Writer) SaveResult(result Result) error {
	if len(result.Stdout) > 0 {
		if err := w.save(result.CheckID+".json", result.Stdout); err != nil {
			return err
		}
	}
	if len(result.Stderr) > 0 {
		if err := w.save(result.CheckID+".log", result.Stderr); err != nil {
			return err
		}
	}
	return nil
}

// SaveArtifact writes an in-process collection artifact (data gathered by
// Go code rather than a script, e.g. registry probes) under the same
// hash-manifest discipline as script output.
func (w *Writer) SaveArtifact(name string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return w.save(name, data)
}

func (w *Writer) save(filename string, data []byte) error {
	path := filepath.Join(w.outputDir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.mu.Lock()
	w.hashes = append(w.hashes, FileHash{
		File:   filename,
		SHA256: sha256Hex(data),
		Size:   len(data),
	})
	w.mu.Unlock()
	return nil
}

// writeJSON marshals v with indentation and writes it to filename in the
// run directory. Meta and manifest files skip the hash ledger: the manifest
// cannot contain its own digest.
func (w *Writer) writeJSON(filename string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filename, err)
	}
	path := filepath.Join(w.outputDir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// sha256Hex computes the SHA-256 hex digest of data.
func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// CollectionMeta holds metadata about the collection run.
type CollectionMeta struct {
	RunID       string      `json:"run_id"`
	Hostname    string      `json:"hostname"`
	MachineID   string      `json:"machine_id,omitempty"`
	OS          string      `json:"os"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
	Duration    string      `json:"duration"`
	Checks      []CheckMeta `json:"checks"`
	TotalChecks int         `json:"total_checks"`
	Succeeded   int         `json:"succeeded"`
	Failed      int         `json:"failed"`
	TimedOut    int         `json:"timed_out"`
}

// CheckMeta holds metadata about a single check execution.
type CheckMeta struct {
	ID          string `json:"id"`
	Duration    string `json:"duration"`
	ExitCode    int    `json:"exit_code"`
	TimedOut    bool   `json:"timed_out,omitempty"`
	Error       string `json:"error,omitempty"`
	FailureKind string `json:"failure_kind,omitempty"` // none | timeout | permission_denied | script_error | not_found | unknown
	HasOutput   bool   `json:"has_output"`
	SHA256      string `json:"sha256,omitempty"`
}

// Manifest records all evidence file hashes for integrity verification.
type Manifest struct {
	GeneratedAt time.Time  `json:"generated_at"`
	RunID       string     `json:"run_id"`
	Hostname    string     `json:"hostname"`
	Files       []FileHash `json:"files"`
}

// SaveMeta writes the collection metadata to collection_meta.json.
func (w *Writer) SaveMeta(meta CollectionMeta) error {
	return w.writeJSON("collection_meta.json", meta)
}

// SaveManifest snapshots the accumulated hashes into manifest.json.
func (w *Writer) SaveManifest(runID, hostname string) error {
	return w.writeJSON("manifest.json", Manifest{
		GeneratedAt: time.Now().UTC(),
		RunID:       runID,
		Hostname:    hostname,
		Files:       w.Hashes(),
	})
}

// Hashes returns a copy of the accumulated file hashes.
func (w *Writer) Hashes() []FileHash {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := make([]FileHash, len(w.hashes))
	copy(cp, w.hashes)
	return cp
}

// GenerateOutputDir returns a timestamped run directory path under baseDir.
func GenerateOutputDir(baseDir string) string {
	ts := time.Now().Format("2006-01-02T15-04-05")
	return filepath.Join(baseDir, ts)
}
