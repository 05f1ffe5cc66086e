package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	"uaswitch/config"
	"uaswitch/logger"

	"github.com/spf13/cobra"
)

var (
	startServerPort string
	startProxyPort  string
)

// service is one long-running part of the daemon. It must return once ctx is done.
type service struct {
	name string
	run  func(ctx context.Context) error
}

// runServices starts every service and blocks until a signal arrives or one of
// them fails, then cancels the rest and waits for them.
func runServices(svcs ...service) {
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, svc := range svcs {
		wg.Add(1)
		go func(svc service) {
			defer wg.Done()
			logger.Info("Starting %s...", svc.name)
			if err := svc.run(ctx); err != nil {
				logger.Error("%s stopped with error: %v", svc.name, err)
				cancel()
				return
			}
			logger.Info("%s finished.", svc.name)
		}(svc)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	logger.Info("All services launched. Press Ctrl+C to exit.")
	select {
	case sig := <-sigs:
		logger.Info("Received signal: %s. Initiating shutdown...", sig)
	case <-ctx.Done():
		logger.Info("Context cancelled (likely due to a service error). Initiating shutdown...")
	}
	cancel()

	shutdownComplete := make(chan struct{})
	go func() {
		wg.Wait()
		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		logger.Info("All services shut down.")
	case <-time.After(10 * time.Second):
		logger.Error("Shutdown timed out. Forcing exit.")
	}
}

// portFromFlag returns the flag value when the user set it, else the configured value, else fallback.
func portFromFlag(cmd *cobra.Command, flagName, flagValue, configValue, fallback string) string {
	port := flagValue
	if !cmd.Flags().Changed(flagName) {
		port = configValue
	}
	if port == "" {
		logger.Error("Port for --%s is empty after checking flag and config, defaulting to %s", flagName, fallback)
		port = fallback
	}
	return port
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts all uaswitch services (API server, rewriting proxy and settings watcher)",
	Long: `Starts the API server, the User-Agent rewriting proxy and the database
watcher concurrently. On the first start against a fresh database the rules
are compiled as part of installation; every later start recompiles them once.
Press Ctrl+C to gracefully shut down all services.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		serverPort := portFromFlag(cmd, "server-port", startServerPort, config.AppConfig.Server.Port, "8778")
		proxyPort := portFromFlag(cmd, "proxy-port", startProxyPort, config.AppConfig.Proxy.Port, "8777")
		logger.Info("Start Command: ports determined - Server: %s, Proxy: %s", serverPort, proxyPort)

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
			return err
		}
		apiServer := svc.newAPIServer(serverPort)

		runServices(
			service{name: "API server", run: func(ctx context.Context) error { return serveAPI(ctx, apiServer) }},
			service{name: "proxy", run: func(ctx context.Context) error { return proxy.Serve(ctx, ":"+proxyPort) }},
			service{name: "watcher", run: svc.watch},
		)
		return nil
	},
}

func init() {
	startCmd.Flags().StringVar(&startServerPort, "server-port", "8778", "Port for the API server (overrides config)")
	startCmd.Flags().StringVar(&startProxyPort, "proxy-port", "8777", "Port for the rewriting proxy (overrides config)")
	rootCmd.AddCommand(startCmd)
}
