package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"uaswitch/database"
	"uaswitch/models"

	"github.com/spf13/cobra"
)

var presetsCmd = &cobra.Command{
	Use:     "presets",
	Short:   "Manage saved User-Agent presets",
	Aliases: []string{"preset"},
}

var presetsListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List saved presets",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			presets, err := svc.store.ListPresets(ctx)
			if err != nil {
				return err
			}
			if len(presets) == 0 {
				fmt.Println("No custom presets saved.")
				return nil
			}
			writer := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
			fmt.Fprintln(writer, "#\tID\tNAME\tUSER-AGENT")
			for i, p := range presets {
				fmt.Fprintf(writer, "%d\t%s\t%s\t%s\n", i, p.ID, p.Name, p.UserAgent)
			}
			return writer.Flush()
		})
	},
}

var presetsAddCmd = &cobra.Command{
	Use:   "add <name> <user-agent>",
	Short: "Save a named User-Agent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			preset, err := svc.store.AddPreset(ctx, args[0], args[1])
			if errors.Is(err, database.ErrInvalidPreset) {
				return fmt.Errorf("please enter a preset name and a User-Agent")
			}
			if err != nil {
				return err
			}
			fmt.Printf("Preset '%s' saved (id %s)\n", preset.Name, preset.ID)
			return nil
		})
	},
}

var presetsDeleteCmd = &cobra.Command{
	Use:     "delete <id|index>",
	Short:   "Delete a preset by id or list index",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			removed, err := svc.store.DeletePreset(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Preset '%s' deleted\n", removed.Name)
			return nil
		})
	},
}

var presetsApplyCmd = &cobra.Command{
	Use:   "apply <id|index>",
	Short: "Copy a preset's User-Agent into the global User-Agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			presets, err := svc.store.ListPresets(ctx)
			if err != nil {
				return err
			}
			idx, ok := database.FindPreset(presets, args[0])
			if !ok {
				return fmt.Errorf("%w: %s", database.ErrPresetNotFound, args[0])
			}
			ua := presets[idx].UserAgent
			if err := svc.store.Set(ctx, models.SettingsPatch{UserAgent: &ua}); err != nil {
				return err
			}
			fmt.Printf("User-Agent set from preset '%s'\n", presets[idx].Name)
			return nil
		})
	},
}

func init() {
	presetsCmd.AddCommand(presetsListCmd)
	presetsCmd.AddCommand(presetsAddCmd)
	presetsCmd.AddCommand(presetsDeleteCmd)
	presetsCmd.AddCommand(presetsApplyCmd)
	rootCmd.AddCommand(presetsCmd)
}
