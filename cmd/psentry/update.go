package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/psentry/psentry/internal/updater"
)

func newUpdateCmd(currentVersion string) *cobra.Command {
	var checkOnly bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update to the latest release",
		Long:  "Checks GitHub releases for a newer version, verifies the download checksum, and replaces the binary in place.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(currentVersion, checkOnly)
		},
		SilenceUsage: true,
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false, "check for a new version without downloading")
	return cmd
}

func runUpdate(currentVersion string, checkOnly bool) error {
	fmt.Println("Checking for updates...")

	info, err := updater.CheckLatest(currentVersion, "")
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	if !info.HasUpdate {
		fmt.Printf("Already up to date (%s)\n", info.CurrentVersion)
		return nil
	}

	fmt.Printf("New version available: %s → %s\n", info.CurrentVersion, info.LatestVersion)

	if checkOnly {
		fmt.Println("Run `psentry update` to install it.")
		return nil
	}

	if info.DownloadURL == "" {
		return fmt.Errorf("update: no binary published for this platform")
	}

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("update: locate executable: %w", err)
	}

	tmpPath := exePath + ".new"
	fmt.Printf("Downloading %s\n", info.DownloadURL)
	if err := updater.Download(info.DownloadURL, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("update: download: %w", err)
	}

	if info.ChecksumURL != "" {
		want, err := updater.FetchChecksum(info.ChecksumURL)
		if err != nil {
			_ = os.Remove(tmpPath)
			return fmt.Errorf("update: fetch checksum: %w", err)
		}
		// VerifySHA256 removes the download itself on mismatch.
		if err := updater.VerifySHA256(tmpPath, want); err != nil {
			return fmt.Errorf("update: %w", err)
		}
		fmt.Println("Checksum verified")
	}

	fmt.Printf("Replacing %s\n", filepath.Base(exePath))
	if err := updater.SelfReplace(exePath, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("update: replace failed (check permissions): %w", err)
	}

	fmt.Printf("Updated %s → %s\n", info.CurrentVersion, info.LatestVersion)
	fmt.Println("Restart psentry to use the new version.")
	return nil
}
