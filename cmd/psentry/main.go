// Package main is the CLI entry point for psentry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/psentry/psentry/internal/config"
	"github.com/psentry/psentry/internal/logging"
	"github.com/psentry/psentry/internal/orchestrator"
	"github.com/psentry/psentry/internal/report"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// exitCode carries the verdict mapping out of the scan run so main can
// exit with it after cobra unwinds.
var exitCode int

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "psentry",
		Short: "Windows security triage: event logs, accounts, patches, PowerShell posture",
		Long: `psentry collects security evidence from a Windows host — event logs,
script block logs, local and domain accounts, hotfixes, PowerShell and JEA
configuration — evaluates it against built-in threat rules and Sigma rules,
and produces a single report.html plus a hash-manifested evidence archive.
No agent installation required: one binary, one run.

Exit code 2 means the verdict is alert.`,
		RunE:          runScan,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "config.toml", "path to config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	rootCmd.Flags().Bool("collect-only", false, "collect evidence without evaluating it")
	rootCmd.Flags().String("only", "", "run specific checks only (comma-separated)")
	rootCmd.Flags().String("fixture", "", "path to a directory of collected evidence to replay")
	rootCmd.Flags().Bool("skip-collect", false, "skip collection phase (use with --fixture)")
	rootCmd.Flags().Bool("no-serve", false, "disable the report server after the run (for CI/scripted use)")
	rootCmd.Flags().Int("port", 8537, "port for the report server")

	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	rootCmd.AddCommand(newRulesCmd())
	rootCmd.AddCommand(newJEACmd())
	rootCmd.AddCommand(newUpdateCmd(version))
	return rootCmd
}

func runScan(cmd *cobra.Command, args []string) error {
	collectOnly, _ := cmd.Flags().GetBool("collect-only")
	onlyStr, _ := cmd.Flags().GetString("only")
	fixture, _ := cmd.Flags().GetString("fixture")
	skipCollect, _ := cmd.Flags().GetBool("skip-collect")
	verbose, _ := cmd.Flags().GetBool("verbose")
	noServe, _ := cmd.Flags().GetBool("no-serve")
	port, _ := cmd.Flags().GetInt("port")

	logging.Setup(verbose)

	if skipCollect && fixture == "" {
		return fmt.Errorf("--skip-collect requires --fixture")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	orch := orchestrator.New(cfg, orchestrator.Options{
		CollectOnly: collectOnly,
		Only:        splitComma(onlyStr),
		Fixture:     fixture,
		SkipCollect: skipCollect,
		Serve:       !noServe,
		Port:        port,
		Version:     fmt.Sprintf("%s (%s)", version, commit),
	})

	data, err := orch.Run(cmd.Context())
	if err != nil {
		return err
	}
	if data != nil && data.Assessment.Verdict == report.VerdictAlert {
		exitCode = 2
	}
	return nil
}

// loadConfig reads the config named by the persistent --config flag. The
// default config.toml may be absent (defaults apply), but a path the user
// passed explicitly must exist; a silent fallback would hide the typo.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
