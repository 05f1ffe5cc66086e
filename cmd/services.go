package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"uaswitch/api"
	"uaswitch/api/router/handlers"
	"uaswitch/config"
	"uaswitch/core"
	"uaswitch/database"
	"uaswitch/logger"
	"uaswitch/metrics"
	"uaswitch/version"
)

// services wires the settings store, the rule table and the updater that keeps
// the two in step. Every command that touches settings goes through it so a write
// always recompiles the rules.
type services struct {
	store   *database.SettingsStore
	rules   *database.RuleTable
	updater *core.RuleUpdater
	metrics *metrics.Metrics
}

func newServices(ctx context.Context) (*services, error) {
	if database.DB == nil {
		return nil, fmt.Errorf("database is not initialized")
	}
	rules, err := database.NewRuleTable(ctx, database.DB)
	if err != nil {
		return nil, err
	}
	store := database.NewSettingsStore(database.DB)
	if err := store.SyncRevision(ctx); err != nil {
		return nil, err
	}
	m := metrics.Get()
	updater := core.NewRuleUpdater(store, rules, m)
	store.OnChanged(updater.HandleSettingsChange)
	return &services{store: store, rules: rules, updater: updater, metrics: m}, nil
}

// boot runs the install or startup recompilation, the first long-running
// command on a fresh database counting as the install.
func (s *services) boot(ctx context.Context) error {
	installed, err := s.store.IsInstalled(ctx)
	if err != nil {
		return fmt.Errorf("checking installation: %w", err)
	}
	if !installed {
		logger.Info("First start on this database, running install.")
		s.updater.OnInstalled(ctx)
		return s.store.MarkInstalled(ctx, version.AppVersion)
	}
	s.updater.OnStartup(ctx)
	return nil
}

// watch follows writes made by other uaswitch processes on the same database.
func (s *services) watch(ctx context.Context) error {
	if !config.AppConfig.Watch.Enabled {
		logger.Info("Watcher: disabled by configuration.")
		<-ctx.Done()
		return nil
	}
	w := database.NewWatcher(database.DBPath, config.AppConfig.Watch.Debounce,
		s.rules.Reload,
		s.store.CheckExternalChange,
	)
	return w.Run(ctx)
}

func (s *services) apiHandlers() *handlers.Handlers {
	return &handlers.Handlers{
		Settings: s.store,
		Rules:    s.rules,
		Updater:  s.updater,
		Probe:    probeOptions(),
	}
}

func probeOptions() core.ProbeOptions {
	return core.ProbeOptions{
		Timeout:       config.AppConfig.Proxy.ProbeTimeout,
		SkipTLSVerify: config.AppConfig.Proxy.ProbeSkipTLSVerify,
	}
}

// newAPIServer mounts the API under /api and the metrics endpoint at /metrics.
func (s *services) newAPIServer(port string) *http.Server {
	apiRouter := api.NewRouter(s.apiHandlers())
	mainMux := http.NewServeMux()
	mainMux.Handle("/api/", http.StripPrefix("/api", apiRouter))
	mainMux.Handle("/metrics", s.metrics.Handler())
	return &http.Server{
		Addr:              ":" + port,
		Handler:           mainMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func serveAPI(ctx context.Context, server *http.Server) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server: graceful shutdown failed: %v", err)
		} else {
			logger.Info("API server: gracefully stopped.")
		}
	}()
	logger.Info("API server: listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server: %w", err)
	}
	return nil
}

func (s *services) newProxy() (*core.RewriteProxy, error) {
	opts := core.ProxyOptions{
		MITM:    config.AppConfig.Proxy.MITM,
		Metrics: s.metrics,
		Verbose: config.AppConfig.Logging.Level == logger.LevelDebug,
	}
	if opts.MITM {
		caCertPath := config.AppConfig.Proxy.CACertPath
		caKeyPath := config.AppConfig.Proxy.CAKeyPath
		if caCertPath == "" || caKeyPath == "" {
			return nil, fmt.Errorf("proxy CA certificate or key path not configured; check config or run 'proxy init-ca' first")
		}
		ca, err := core.LoadCA(caCertPath, caKeyPath)
		if err != nil {
			return nil, fmt.Errorf("loading proxy CA (run 'proxy init-ca' first): %w", err)
		}
		logger.ProxyInfo("Proxy using CA Cert: %s, CA Key: %s", caCertPath, caKeyPath)
		opts.CA = &ca
	}
	return core.NewRewriteProxy(s.rules, opts)
}
