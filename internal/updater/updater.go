// Package updater handles self-update for the psentry binary.
package updater

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
)

const defaultAPIURL = "https://api.github.com/repos/psentry/psentry/releases/latest"

// UpdateInfo holds the result of a version check.
type UpdateInfo struct {
	HasUpdate      bool
	CurrentVersion string
	LatestVersion  string
	DownloadURL    string
	// ChecksumURL points at the per-asset .sha256 file when the release
	// ships one; empty otherwise.
	ChecksumURL string
}

type githubRelease struct {
	TagName string        `json:"tag_name"`
	Assets  []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// httpGet wraps http.Get with a non-200 status check. The caller owns the
// body on success.
func httpGet(url string) (*http.Response, error) {
	resp, err := http.Get(url) //nolint:noctx
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return resp, nil
}

// CheckLatest asks the GitHub releases API whether a newer version exists.
// The empty apiURL selects the official endpoint; tests point it at a stub.
func CheckLatest(currentVersion, apiURL string) (*UpdateInfo, error) {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	resp, err := httpGet(apiURL)
	if err != nil {
		return nil, fmt.Errorf("updater: fetch releases: %w", err)
	}
	defer resp.Body.Close()

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("updater: parse response: %w", err)
	}

	info := &UpdateInfo{
		CurrentVersion: currentVersion,
		LatestVersion:  release.TagName,
		HasUpdate:      isNewer(currentVersion, release.TagName),
	}
	if info.HasUpdate {
		info.DownloadURL, info.ChecksumURL = findAssets(release.Assets)
	}
	return info, nil
}

// findAssets locates the binary for the running platform and its optional
// checksum companion among the release assets.
func findAssets(assets []githubAsset) (binURL, sumURL string) {
	target := AssetName(runtime.GOOS, runtime.GOARCH)
	for _, a := range assets {
		switch a.Name {
		case target:
			binURL = a.BrowserDownloadURL
		case target + ".sha256":
			sumURL = a.BrowserDownloadURL
		}
	}
	return binURL, sumURL
}

// AssetName returns the release asset filename for the given OS/arch.
func AssetName(goos, goarch string) string {
	name := "psentry-" + goos + "-" + goarch
	if goos == "windows" {
		name += ".exe"
	}
	return name
}

// SelfReplace swaps newBinary in over exePath. Rename is atomic on the same
// filesystem, but Windows refuses to rename over a running exe, so there the
// old binary is parked at .bak and left behind.
func SelfReplace(exePath, newBinary string) error {
	if err := os.Chmod(newBinary, 0o755); err != nil {
		return fmt.Errorf("updater: chmod new binary: %w", err)
	}

	if runtime.GOOS == "windows" {
		bakPath := exePath + ".bak"
		_ = os.Remove(bakPath)
		if err := os.Rename(exePath, bakPath); err != nil {
			return fmt.Errorf("updater: rename current exe: %w", err)
		}
	}

	if err := os.Rename(newBinary, exePath); err != nil {
		return fmt.Errorf("updater: replace exe: %w", err)
	}
	return nil
}

// Download streams url into destPath with executable permissions.
func Download(url, destPath string) error {
	resp, err := httpGet(url)
	if err != nil {
		return fmt.Errorf("updater: download: %w", err)
	}
	defer resp.Body.Close()

	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("updater: create dest file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("updater: write download: %w", err)
	}
	return nil
}

// FetchChecksum downloads a .sha256 asset and returns the hex digest it
// declares. The file format is the usual "digest  filename" line.
func FetchChecksum(url string) (string, error) {
	resp, err := httpGet(url)
	if err != nil {
		return "", fmt.Errorf("updater: fetch checksum: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("updater: read checksum: %w", err)
	}

	digest, _, _ := strings.Cut(strings.TrimSpace(string(body)), " ")
	digest = strings.ToLower(digest)
	if len(digest) != 64 {
		return "", fmt.Errorf("updater: malformed checksum %q", digest)
	}
	return digest, nil
}

// VerifySHA256 checks that the file at path hashes to wantHex. On mismatch
// the file is removed so a corrupted download cannot be installed.
func VerifySHA256(path, wantHex string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("updater: open download: %w", err)
	}
	h := sha256.New()
	_, err = io.Copy(h, f)
	f.Close()
	if err != nil {
		return fmt.Errorf("updater: hash download: %w", err)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, wantHex) {
		os.Remove(path)
		return fmt.Errorf("updater: checksum mismatch: got %s, want %s", got, wantHex)
	}
	return nil
}

// isNewer reports whether latest is a higher version than current. A "dev"
// or empty current version always counts as older, so local builds still
// offer the update.
func isNewer(current, latest string) bool {
	current = strings.TrimPrefix(current, "v")
	latest = strings.TrimPrefix(latest, "v")
	if current == "dev" || current == "" || current == "none" {
		return latest != ""
	}
	return semverLess(current, latest)
}

// semverLess compares major.minor.patch numerically. Pre-release suffixes
// are ignored.
func semverLess(a, b string) bool {
	pa := splitSemver(a)
	pb := splitSemver(b)
	for i := 0; i < 3; i++ {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	return false
}

func splitSemver(v string) [3]int {
	var out [3]int
	for i := 0; i < 3; i++ {
		var part string
		part, v, _ = strings.Cut(v, ".")
		part, _, _ = strings.Cut(part, "-")
		out[i], _ = strconv.Atoi(part)
	}
	return out
}
