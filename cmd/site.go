package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"uaswitch/filter"
	"uaswitch/models"

	"github.com/spf13/cobra"
)

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Manage the per-site User-Agent rules used in perSite mode",
}

var siteListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List the per-site rules in order",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			s, err := loadSettings(ctx, svc)
			if err != nil {
				return err
			}
			if len(s.SiteRules) == 0 {
				fmt.Println("No per-site rules.")
				return nil
			}
			writer := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
			fmt.Fprintln(writer, "#\tDOMAIN\tUSER-AGENT\t")
			for i, r := range s.SiteRules {
				note := ""
				if !r.Complete() {
					note = "(incomplete, skipped)"
				}
				fmt.Fprintf(writer, "%d\t%s\t%s\t%s\n", i, r.Domain, r.UserAgent, note)
			}
			return writer.Flush()
		})
	},
}

var siteAddCmd = &cobra.Command{
	Use:   "add <domain> <user-agent>",
	Short: "Add a per-site rule, or replace the User-Agent of an existing one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain := strings.TrimSpace(args[0])
		ua := strings.TrimSpace(args[1])
		if domain == "" || ua == "" {
			return fmt.Errorf("both a domain and a User-Agent are required")
		}
		return withServices(func(ctx context.Context, svc *services) error {
			replaced := false
			err := svc.store.Update(ctx, func(current models.Settings) (models.SettingsPatch, error) {
				rules := append([]models.SiteRule{}, current.SiteRules...)
				replaced = false
				for i := range rules {
					if filter.NormalizeHost(rules[i].Domain) == filter.NormalizeHost(domain) {
						rules[i].UserAgent = ua
						replaced = true
						break
					}
				}
				if !replaced {
					rules = append(rules, models.SiteRule{Domain: domain, UserAgent: ua})
				}
				return models.SettingsPatch{SiteRules: &rules}, nil
			})
			if err != nil {
				return err
			}
			if replaced {
				fmt.Printf("Updated rule for %s\n", domain)
			} else {
				fmt.Printf("Added rule for %s\n", domain)
			}
			return nil
		})
	},
}

var siteRemoveCmd = &cobra.Command{
	Use:     "remove <domain>",
	Short:   "Remove every per-site rule for a domain",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain := filter.NormalizeHost(args[0])
		return withServices(func(ctx context.Context, svc *services) error {
			removed := 0
			err := svc.store.Update(ctx, func(current models.Settings) (models.SettingsPatch, error) {
				rules := make([]models.SiteRule, 0, len(current.SiteRules))
				for _, r := range current.SiteRules {
					if filter.NormalizeHost(r.Domain) != domain {
						rules = append(rules, r)
					}
				}
				removed = len(current.SiteRules) - len(rules)
				if removed == 0 {
					return models.SettingsPatch{}, fmt.Errorf("no per-site rule for %s", args[0])
				}
				return models.SettingsPatch{SiteRules: &rules}, nil
			})
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d rule(s) for %s\n", removed, args[0])
			return nil
		})
	},
}

var excludeCmd = &cobra.Command{
	Use:   "exclude",
	Short: "Manage the domains the global rule leaves untouched",
}

var excludeListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List the excluded domains in effect",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			s, err := loadSettings(ctx, svc)
			if err != nil {
				return err
			}
			if len(s.ExcludedDomains) == 0 {
				fmt.Println("(built-in defaults)")
			}
			for _, d := range s.ResolvedExcludedDomains() {
				fmt.Println(d)
			}
			return nil
		})
	},
}

func updateExcluded(ctx context.Context, svc *services, edit func(current []string) []string) ([]string, error) {
	var next []string
	err := svc.store.Update(ctx, func(s models.Settings) (models.SettingsPatch, error) {
		current := append([]string{}, s.ResolvedExcludedDomains()...)
		next = edit(current)
		return models.SettingsPatch{ExcludedDomains: &next}, nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

var excludeAddCmd = &cobra.Command{
	Use:   "add <domain>...",
	Short: "Add domains to the exclusion list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			next, err := updateExcluded(ctx, svc, func(current []string) []string {
				for _, arg := range args {
					d := strings.TrimSpace(arg)
					if d == "" || containsDomain(current, d) {
						continue
					}
					current = append(current, d)
				}
				return current
			})
			if err != nil {
				return err
			}
			fmt.Printf("%d excluded domain(s)\n", len(next))
			return nil
		})
	},
}

var excludeRemoveCmd = &cobra.Command{
	Use:     "remove <domain>...",
	Short:   "Remove domains from the exclusion list",
	Aliases: []string{"rm"},
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			next, err := updateExcluded(ctx, svc, func(current []string) []string {
				kept := make([]string, 0, len(current))
				for _, d := range current {
					if !containsDomain(args, d) {
						kept = append(kept, d)
					}
				}
				return kept
			})
			if err != nil {
				return err
			}
			if len(next) == 0 {
				fmt.Println("Exclusion list is empty; the built-in defaults apply.")
				return nil
			}
			fmt.Printf("%d excluded domain(s)\n", len(next))
			return nil
		})
	},
}

var excludeResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the built-in exclusion list",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			defaults := models.DefaultSettings().ExcludedDomains
			if err := svc.store.Set(ctx, models.SettingsPatch{ExcludedDomains: &defaults}); err != nil {
				return err
			}
			fmt.Printf("Exclusion list reset to %s\n", strings.Join(defaults, ", "))
			return nil
		})
	},
}

func containsDomain(list []string, domain string) bool {
	want := filter.NormalizeHost(domain)
	for _, d := range list {
		if filter.NormalizeHost(d) == want {
			return true
		}
	}
	return false
}

func init() {
	siteCmd.AddCommand(siteListCmd)
	siteCmd.AddCommand(siteAddCmd)
	siteCmd.AddCommand(siteRemoveCmd)
	settingsCmd.AddCommand(siteCmd)

	excludeCmd.AddCommand(excludeListCmd)
	excludeCmd.AddCommand(excludeAddCmd)
	excludeCmd.AddCommand(excludeRemoveCmd)
	excludeCmd.AddCommand(excludeResetCmd)
	settingsCmd.AddCommand(excludeCmd)
}
