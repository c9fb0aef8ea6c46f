package report

import (
	"archive/zip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExportArchive_CreatesZip(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "2026-08-24T12-00-00")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(outputDir, "security_events.json"), []byte(`{"check":"security_events"}`), 0o644)
	os.WriteFile(filepath.Join(outputDir, "report.html"), []byte(`<html></html>`), 0o644)
	os.WriteFile(filepath.Join(outputDir, "manifest.json"), []byte(`{"files":[]}`), 0o644)

	zipPath, err := ExportArchive(outputDir, sampleReportData())
	if err != nil {
		t.Fatalf("ExportArchive: %v", err)
	}
	if zipPath != outputDir+".zip" {
		t.Errorf("zip path = %q", zipPath)
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer r.Close()

	names := make(map[string]bool)
	for _, f := range r.File {
		names[filepath.Base(f.Name)] = true
	}
	for _, want := range []string{"security_events.json", "report.html", "manifest.json", "package_info.json"} {
		if !names[want] {
			t.Errorf("archive missing %s (has %v)", want, names)
		}
	}
}

func TestExportArchive_PackageInfo(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "run")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(outputDir, "hotfixes.json"), []byte(`{"check":"hotfixes"}`), 0o644)

	zipPath, err := ExportArchive(outputDir, sampleReportData())
	if err != nil {
		t.Fatalf("ExportArchive: %v", err)
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer r.Close()

	var info ArchiveInfo
	for _, f := range r.File {
		if strings.HasSuffix(f.Name, "package_info.json") {
			rc, err := f.Open()
			if err != nil {
				t.Fatal(err)
			}
			err = json.NewDecoder(rc).Decode(&info)
			rc.Close()
			if err != nil {
				t.Fatal(err)
			}
			break
		}
	}

	if info.Hostname != "SRV-01" {
		t.Errorf("hostname = %q", info.Hostname)
	}
	if info.RunID != "4f7c2d9e" {
		t.Errorf("run id = %q", info.RunID)
	}
	if info.ToolVersion != "0.3.0" {
		t.Errorf("tool version = %q", info.ToolVersion)
	}
	if len(info.Files) != 1 || info.Files[0].SHA256 == "" {
		t.Errorf("files = %+v", info.Files)
	}
}

func TestExportArchive_EmptyDir(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "empty")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatal(err)
	}

	zipPath, err := ExportArchive(outputDir, sampleReportData())
	if err != nil {
		t.Fatalf("ExportArchive: %v", err)
	}
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer r.Close()
	if len(r.File) != 1 {
		t.Errorf("expected only package_info.json, got %d files", len(r.File))
	}
}
