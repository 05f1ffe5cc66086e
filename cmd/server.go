package cmd

import (
	"context"
	"uaswitch/config"

	"github.com/spf13/cobra"
)

var standaloneServerPort string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the API server (can be run standalone or as part of 'start')",
	RunE: func(cmd *cobra.Command, args []string) error {
		port := portFromFlag(cmd, "port", standaloneServerPort, config.AppConfig.Server.Port, "8778")

		ctx := context.Background()
		svc, err := newServices(ctx)
		if err != nil {
			return err
		}
		if err := svc.boot(ctx); err != nil {
			return err
		}
		apiServer := svc.newAPIServer(port)

		runServices(
			service{name: "API server", run: func(ctx context.Context) error { return serveAPI(ctx, apiServer) }},
			service{name: "watcher", run: svc.watch},
		)
		return nil
	},
}

func init() {
	serverCmd.Flags().StringVarP(&standaloneServerPort, "port", "p", "8778", "Port for the server to listen on (overrides config)")
	rootCmd.AddCommand(serverCmd)
}
