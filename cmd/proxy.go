package cmd

import (
	"context"
	"fmt"
	"uaswitch/config"
	"uaswitch/core"
	"uaswitch/logger"

	"github.com/spf13/cobra"
)

var standaloneProxyPort string

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Manages the rewriting proxy (can be run standalone or as part of 'start')",
}

var proxyStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts the rewriting proxy",
	Long: `Starts the forward proxy that applies the active User-Agent rules to every
request passing through it. Point your browser or HTTP client at it.
With proxy.mitm enabled (the default), HTTPS requests are intercepted too; a CA
certificate must be generated with 'proxy init-ca' and trusted by your client.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port := portFromFlag(cmd, "port", standaloneProxyPort, config.AppConfig.Proxy.Port, "8777")

		ctx := context.Background()
		svc, err := newServices(ctx)
		if err != nil {
			return err
		}
		if err := svc.boot(ctx); err != nil {
			return err
		}
		proxy, err := svc.newProxy()
		if err != nil {
			logger.ProxyError("Error starting proxy: %v", err)
			return err
		}

		runServices(
			service{name: "proxy", run: func(ctx context.Context) error { return proxy.Serve(ctx, ":"+port) }},
			service{name: "watcher", run: svc.watch},
		)
		return nil
	},
}

var proxyInitCACmd = &cobra.Command{
	Use:   "init-ca",
	Short: "Generates the root CA certificate and key used for HTTPS interception",
	RunE: func(cmd *cobra.Command, args []string) error {
		certPath := config.AppConfig.Proxy.CACertPath
		keyPath := config.AppConfig.Proxy.CAKeyPath
		if certPath == "" || keyPath == "" {
			return fmt.Errorf("CA certificate or key path is not defined in configuration")
		}

		fmt.Println("Initializing Proxy CA...")
		if err := core.GenerateAndSaveCA(certPath, keyPath); err != nil {
			return fmt.Errorf("generating CA: %w", err)
		}
		fmt.Printf("CA certificate written to %s\n", certPath)
		fmt.Println("Please import the CA certificate into your browser/system's trust store.")
		return nil
	},
}

func init() {
	proxyStartCmd.Flags().StringVarP(&standaloneProxyPort, "port", "p", "8777", "Port for the proxy server to listen on (overrides config)")

	proxyCmd.AddCommand(proxyStartCmd)
	proxyCmd.AddCommand(proxyInitCACmd)
	rootCmd.AddCommand(proxyCmd)
}
