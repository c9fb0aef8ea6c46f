package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psentry/psentry/internal/threat"
)

// newRulesCmd lists the threat rules a scan would evaluate: the built-in
// set plus the configured custom rules, minus disabled IDs.
func newRulesCmd() *cobra.Command {
	var format string
	var customPath string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the script threat rules a scan would evaluate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if customPath != "" {
				cfg.Rules.CustomPath = customPath
			}

			rules := threat.DefaultRuleset()
			if cfg.Rules.CustomPath != "" {
				custom, err := threat.LoadCustomRules(cfg.Rules.CustomPath)
				if err != nil {
					return fmt.Errorf("custom rules: %w", err)
				}
				if err := rules.Add(custom...); err != nil {
					return fmt.Errorf("custom rules: %w", err)
				}
			}
			rules.Disable(cfg.Rules.Disabled...)

			switch format {
			case "json":
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rules.Rules())
			case "table":
				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"ID", "Severity", "Category", "Title"})
				table.SetBorder(false)
				table.SetAutoWrapText(false)
				for _, r := range rules.Rules() {
					table.Append([]string{r.ID, r.Severity.String(), r.Category, r.Title})
				}
				table.Render()
				fmt.Printf("\n%d rule(s) enabled\n", rules.Len())
				return nil
			default:
				return fmt.Errorf("unknown format %q (want table or json)", format)
			}
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	cmd.Flags().StringVar(&customPath, "custom", "", "include custom rules from a YAML file")
	return cmd
}
