package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psentry/psentry/internal/collector"
	"github.com/psentry/psentry/internal/config"
	"github.com/psentry/psentry/internal/jea"
	"github.com/psentry/psentry/internal/platform"
	"github.com/psentry/psentry/scripts"
)

func newJEACmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jea",
		Short: "Generate and audit Just Enough Administration endpoints",
	}
	cmd.AddCommand(newJEAInitCmd())
	cmd.AddCommand(newJEAAuditCmd())
	return cmd
}

func specFromConfig(cfg *config.Config) jea.Spec {
	return jea.Spec{
		EndpointName:     cfg.JEA.EndpointName,
		RoleName:         cfg.JEA.RoleName,
		AllowedGroups:    cfg.JEA.AllowedGroups,
		VisibleCmdlets:   cfg.JEA.VisibleCmdlets,
		VisibleFunctions: cfg.JEA.VisibleFunctions,
		VisibleProviders: cfg.JEA.VisibleProviders,
		ModulesToImport:  cfg.JEA.ModulesToImport,
		TranscriptDir:    cfg.JEA.TranscriptDir,
		VirtualAccount:   cfg.JEA.VirtualAccount,
	}
}

func newJEAInitCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a constrained endpoint from the [jea] config section",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			spec := specFromConfig(cfg)

			issues := jea.Lint(spec)
			for _, issue := range issues {
				fmt.Fprintf(os.Stderr, "  %s\n", issue)
			}
			if jea.Blocking(issues) {
				return fmt.Errorf("endpoint definition has blocking errors; fix the [jea] config section")
			}

			dir := cfg.JEA.OutputDir
			if outDir != "" {
				dir = outDir
			}
			gen, err := jea.Generate(spec, dir)
			if err != nil {
				return err
			}

			fmt.Printf("Role capability:       %s\n", gen.RoleCapabilityPath)
			fmt.Printf("Session configuration: %s\n", gen.SessionConfigPath)
			fmt.Printf("\nRegister on the target host with:\n  %s\n", gen.RegisterCommand)
			return nil
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&outDir, "out", "", "output directory (defaults to [jea].output_dir)")
	return cmd
}

func newJEAAuditCmd() *cobra.Command {
	var fixture string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit the host's remoting endpoints for weak configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := endpointEvidence(cmd.Context(), fixture)
			if err != nil {
				return err
			}
			doc, err := jea.ParseEndpoints(raw)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Endpoint", "Session Type", "Language", "Run As"})
			table.SetBorder(false)
			table.SetAutoWrapText(false)
			for _, ep := range doc.Endpoints {
				runAs := ep.RunAsUser
				if ep.RunAsVirtualAccount {
					runAs = "virtual account"
				}
				table.Append([]string{ep.Name, ep.SessionType, ep.LanguageMode, runAs})
			}
			table.Render()

			findings := jea.AuditEndpoints(doc)
			if len(findings) == 0 {
				fmt.Println("\nNo endpoint weaknesses found.")
				return nil
			}
			fmt.Println()
			for _, f := range findings {
				fmt.Printf("[%s] %s %s — %s\n", f.Severity, f.ID, f.Title, f.Evidence)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&fixture, "fixture", "", "read jea_endpoints.json from this directory instead of querying the host")
	return cmd
}

// endpointEvidence returns raw jea_endpoints output, either replayed from a
// fixture directory or collected live.
func endpointEvidence(ctx context.Context, fixture string) ([]byte, error) {
	if fixture != "" {
		return os.ReadFile(filepath.Join(fixture, "jea_endpoints.json"))
	}
	check, ok := platform.Find("jea_endpoints")
	if !ok {
		return nil, fmt.Errorf("jea_endpoints check not registered")
	}
	script, err := scripts.WindowsScripts.ReadFile(check.Script)
	if err != nil {
		return nil, fmt.Errorf("embedded script: %w", err)
	}
	result := collector.RunCheck(ctx, check, script, nil)
	if result.Error != nil {
		return nil, fmt.Errorf("run jea_endpoints check: %w", result.Error)
	}
	return result.Stdout, nil
}
