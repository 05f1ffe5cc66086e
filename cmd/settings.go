package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"uaswitch/core"
	"uaswitch/logger"
	"uaswitch/models"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var (
	exportFormat string
	exportOutput string
	importFormat string
)

// withServices runs fn against freshly wired services. Writes made through the store
// recompile the rules before fn returns.
func withServices(fn func(ctx context.Context, svc *services) error) error {
	ctx := context.Background()
	svc, err := newServices(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, svc)
}

func loadSettings(ctx context.Context, svc *services) (models.Settings, error) {
	return svc.store.Get(ctx, models.DefaultSettings())
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "Written to %s\n", path)
	return nil
}

var settingsCmd = &cobra.Command{
	Use:     "settings",
	Short:   "View and edit the User-Agent override settings",
	Aliases: []string{"s"},
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the settings record with defaults applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			s, err := loadSettings(ctx, svc)
			if err != nil {
				return err
			}
			writer := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
			fmt.Fprintf(writer, "Enabled:\t%t\n", s.Enabled)
			fmt.Fprintf(writer, "Mode:\t%s\n", s.Mode)
			fmt.Fprintf(writer, "User-Agent:\t%s\n", s.UserAgent)
			fmt.Fprintf(writer, "Site rules:\t%d\n", len(s.SiteRules))
			fmt.Fprintf(writer, "Custom presets:\t%d\n", len(s.CustomPresets))
			fmt.Fprintf(writer, "Excluded domains:\t%s\n", strings.Join(s.ResolvedExcludedDomains(), ", "))
			return writer.Flush()
		})
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Print one value of the settings record",
	Long: `Prints the value at a path of the settings record rendered as JSON,
for example 'userAgent', 'siteRules.0.domain' or 'siteRules.#.domain'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			s, err := loadSettings(ctx, svc)
			if err != nil {
				return err
			}
			doc, err := json.Marshal(s)
			if err != nil {
				return err
			}
			value := gjson.GetBytes(doc, args[0])
			if !value.Exists() {
				return fmt.Errorf("no settings value at path %q", args[0])
			}
			if value.Type == gjson.String {
				fmt.Println(value.String())
			} else {
				fmt.Println(value.Raw)
			}
			return nil
		})
	},
}

func setEnabled(enabled bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			if err := svc.store.Set(ctx, models.SettingsPatch{Enabled: &enabled}); err != nil {
				return err
			}
			fmt.Printf("User-Agent override enabled: %t\n", enabled)
			return nil
		})
	}
}

var settingsEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn the User-Agent override on",
	RunE:  setEnabled(true),
}

var settingsDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn the User-Agent override off",
	RunE:  setEnabled(false),
}

var settingsModeCmd = &cobra.Command{
	Use:       "mode <all|perSite>",
	Short:     "Select global or per-site mode",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(models.ModeAll), string(models.ModePerSite)},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := models.Mode(strings.TrimSpace(args[0]))
		if !mode.Valid() {
			return fmt.Errorf("invalid mode %q (want %q or %q)", args[0], models.ModeAll, models.ModePerSite)
		}
		return withServices(func(ctx context.Context, svc *services) error {
			if err := svc.store.Set(ctx, models.SettingsPatch{Mode: &mode}); err != nil {
				return err
			}
			fmt.Printf("Mode set to %s\n", mode)
			return nil
		})
	},
}

var settingsUACmd = &cobra.Command{
	Use:   "ua <user-agent>",
	Short: "Set the global User-Agent (an empty string clears it)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ua := strings.TrimSpace(args[0])
		return withServices(func(ctx context.Context, svc *services) error {
			if err := svc.store.Set(ctx, models.SettingsPatch{UserAgent: &ua}); err != nil {
				return err
			}
			fmt.Printf("User-Agent set to %q\n", ua)
			return nil
		})
	},
}

var settingsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Write the keys present in a JSON (comments allowed) or YAML document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		format := importFormat
		if format == "" {
			format = core.FormatFromPath(args[0])
		}
		patch, err := core.DecodeSettingsPatch(data, format)
		if err != nil {
			return err
		}
		keys := patch.Keys()
		if len(keys) == 0 {
			return fmt.Errorf("%s does not contain any settings keys", args[0])
		}
		return withServices(func(ctx context.Context, svc *services) error {
			if err := svc.store.Set(ctx, patch); err != nil {
				return err
			}
			logger.Info("Imported settings keys %s from %s", strings.Join(keys, ", "), args[0])
			fmt.Printf("Imported %s\n", strings.Join(keys, ", "))
			return nil
		})
	},
}

var settingsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the full settings record as JSON or YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			s, err := loadSettings(ctx, svc)
			if err != nil {
				return err
			}
			format := exportFormat
			if !cmd.Flags().Changed("format") && exportOutput != "" {
				format = core.FormatFromPath(exportOutput)
			}
			data, err := core.EncodeSettings(s, format)
			if err != nil {
				return err
			}
			return writeOutput(exportOutput, []byte(strings.TrimRight(string(data), "\n")))
		})
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Overwrite every settings key with its default (presets included)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			if err := svc.store.Reset(ctx); err != nil {
				return err
			}
			fmt.Println("Settings reset to defaults.")
			return nil
		})
	},
}

func init() {
	settingsExportCmd.Flags().StringVarP(&exportFormat, "format", "f", core.FormatJSON, "output format: json or yaml")
	settingsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to a file instead of stdout")
	settingsImportCmd.Flags().StringVarP(&importFormat, "format", "f", "", "input format: json or yaml (default from the file extension)")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsEnableCmd)
	settingsCmd.AddCommand(settingsDisableCmd)
	settingsCmd.AddCommand(settingsModeCmd)
	settingsCmd.AddCommand(settingsUACmd)
	settingsCmd.AddCommand(settingsImportCmd)
	settingsCmd.AddCommand(settingsExportCmd)
	settingsCmd.AddCommand(settingsResetCmd)
	rootCmd.AddCommand(settingsCmd)
}
