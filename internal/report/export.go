package report

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ArchiveInfo is the package_info.json metadata written into every evidence
// archive so a recipient can verify what they received.
type ArchiveInfo struct {
	Version     string        `json:"version"`
	Hostname    string        `json:"hostname"`
	OS          string        `json:"os"`
	RunID       string        `json:"run_id"`
	CreatedAt   time.Time     `json:"created_at"`
	ToolVersion string        `json:"tool_version"`
	Files       []ArchiveFile `json:"files"`
}

// ArchiveFile records one file included in the archive.
type ArchiveFile struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// ExportArchive zips the run's output directory for handoff: raw check JSON,
// stderr logs, manifest and rendered reports, plus a package_info.json with
// per-file hashes. Returns the path of the created archive.
func ExportArchive(outputDir string, data ReportData) (string, error) {
	zipPath := outputDir + ".zip"

	zipFile, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer zipFile.Close()

	w := zip.NewWriter(zipFile)
	dirBase := filepath.Base(outputDir)

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return "", fmt.Errorf("read output dir: %w", err)
	}

	var files []ArchiveFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outputDir, entry.Name()))
		if err != nil {
			continue
		}

		zf, err := w.Create(dirBase + "/" + entry.Name())
		if err != nil {
			return "", fmt.Errorf("archive %s: %w", entry.Name(), err)
		}
		if _, err := zf.Write(content); err != nil {
			return "", fmt.Errorf("archive %s: %w", entry.Name(), err)
		}

		sum := sha256.Sum256(content)
		files = append(files, ArchiveFile{
			Name:   entry.Name(),
			SHA256: hex.EncodeToString(sum[:]),
			Size:   int64(len(content)),
		})
	}

	info := ArchiveInfo{
		Version:     "1.0",
		Hostname:    data.Hostname,
		OS:          data.OS,
		RunID:       data.RunID,
		CreatedAt:   time.Now().UTC(),
		ToolVersion: data.Version,
		Files:       files,
	}
	infoJSON, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal package info: %w", err)
	}
	zf, err := w.Create(dirBase + "/package_info.json")
	if err != nil {
		return "", fmt.Errorf("archive package_info: %w", err)
	}
	if _, err := zf.Write(infoJSON); err != nil {
		return "", fmt.Errorf("archive package_info: %w", err)
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}
	if err := zipFile.Close(); err != nil {
		return "", fmt.Errorf("close archive file: %w", err)
	}
	return zipPath, nil
}
