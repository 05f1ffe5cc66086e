package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"uaswitch/core"
	"uaswitch/models"

	"github.com/spf13/cobra"
)

var (
	rulesExportOutput string
	ruleResourceType  string
)

func printRules(rules []models.CompiledRule) error {
	if len(rules) == 0 {
		fmt.Println("No active rules.")
		return nil
	}
	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
	fmt.Fprintln(writer, "ID\tPRIORITY\tURL FILTER\tEXCLUDED\tUSER-AGENT")
	for _, r := range rules {
		ua := ""
		if len(r.Action.RequestHeaders) > 0 {
			ua = r.Action.RequestHeaders[0].Value
		}
		fmt.Fprintf(writer, "%d\t%d\t%s\t%s\t%s\n", r.ID, r.Priority, r.Condition.URLFilter, strings.Join(r.Condition.ExcludedRequestDomains, ","), ua)
	}
	return writer.Flush()
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and rebuild the compiled header-rewrite rules",
}

var rulesListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List the active rules",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			rules, err := svc.rules.ListActive(ctx)
			if err != nil {
				return err
			}
			return printRules(rules)
		})
	},
}

var rulesRecompileCmd = &cobra.Command{
	Use:   "recompile",
	Short: "Rebuild the active rules from the stored settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			rules, err := svc.updater.RecompileNow(ctx)
			if err != nil {
				return fmt.Errorf("failed to update rules: %w", err)
			}
			fmt.Printf("Installed %d rule(s)\n", len(rules))
			return printRules(rules)
		})
	},
}

var rulesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the rules compiled from the stored settings as declarative JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			s, err := loadSettings(ctx, svc)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(core.CompileRules(s), "", "  ")
			if err != nil {
				return err
			}
			return writeOutput(rulesExportOutput, data)
		})
	},
}

var rulesMatchCmd = &cobra.Command{
	Use:   "match <url>",
	Short: "Show which active rule applies to a URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			rules, err := svc.rules.ListActive(ctx)
			if err != nil {
				return err
			}
			result, err := core.MatchURL(rules, args[0], ruleResourceType)
			if err != nil {
				return err
			}
			if !result.Matched {
				fmt.Printf("No rule matches %s (%s); the User-Agent is left unchanged.\n", result.URL, result.ResourceType)
				return nil
			}
			fmt.Printf("Rule %d (%s) matches %s (%s)\n", result.Rule.ID, result.Rule.Condition.URLFilter, result.URL, result.ResourceType)
			fmt.Printf("User-Agent: %s\n", result.UserAgent)
			return nil
		})
	},
}

func init() {
	rulesExportCmd.Flags().StringVarP(&rulesExportOutput, "output", "o", "", "write to a file instead of stdout")
	rulesMatchCmd.Flags().StringVarP(&ruleResourceType, "type", "t", models.ResourceMainFrame, "resource type of the request")

	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesRecompileCmd)
	rulesCmd.AddCommand(rulesExportCmd)
	rulesCmd.AddCommand(rulesMatchCmd)
	rootCmd.AddCommand(rulesCmd)
}
