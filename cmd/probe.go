package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"uaswitch/core"
	"uaswitch/models"

	"github.com/spf13/cobra"
)

var (
	probeResourceType string
	probeShowBody     bool
)

var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Fetch a URL with the User-Agent the active rules produce for it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			rules, err := svc.rules.ListActive(ctx)
			if err != nil {
				return err
			}
			result, err := core.Probe(ctx, rules, args[0], probeResourceType, probeOptions())
			if err != nil {
				return err
			}
			if result.MatchedRuleID != 0 {
				fmt.Printf("Rule:       %d\n", result.MatchedRuleID)
			} else {
				fmt.Println("Rule:       none")
			}
			fmt.Printf("User-Agent: %s\n", result.SentUserAgent)
			fmt.Printf("Status:     %d (%d ms)\n", result.StatusCode, result.DurationMs)

			names := make([]string, 0, len(result.ResponseHeaders))
			for name := range result.ResponseHeaders {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  %s: %s\n", name, strings.Join(result.ResponseHeaders[name], ", "))
			}
			if probeShowBody {
				fmt.Println()
				fmt.Println(result.ResponseBody)
			}
			return nil
		})
	},
}

func init() {
	probeCmd.Flags().StringVarP(&probeResourceType, "type", "t", models.ResourceMainFrame, "resource type of the request")
	probeCmd.Flags().BoolVarP(&probeShowBody, "body", "b", false, "print the decoded response body")
	rootCmd.AddCommand(probeCmd)
}
