package core

import (
	"context"
	"fmt"
	"sync"
	"time"
	"uaswitch/database"
	"uaswitch/logger"
	"uaswitch/metrics"
	"uaswitch/models"
)

// SettingsSource reads the current settings record.
type SettingsSource interface {
	Get(ctx context.Context, defaults models.Settings) (models.Settings, error)
}

// RuleRegistry holds the active rule set and replaces it atomically.
type RuleRegistry interface {
	ListActive(ctx context.Context) ([]models.CompiledRule, error)
	Replace(ctx context.Context, update models.RuleUpdate) error
}

// Triggers that start a recompilation.
const (
	TriggerInstalled = "installed"
	TriggerStartup   = "startup"
	TriggerChange    = "settings_change"
	TriggerManual    = "manual"
)

// RuleUpdater rebuilds the rule table from the settings record. Runs are serialized.
type RuleUpdater struct {
	settings SettingsSource
	rules    RuleRegistry
	metrics  *metrics.Metrics

	mu sync.Mutex
}

func NewRuleUpdater(settings SettingsSource, rules RuleRegistry, m *metrics.Metrics) *RuleUpdater {
	if m == nil {
		m = metrics.Get()
	}
	return &RuleUpdater{settings: settings, rules: rules, metrics: m}
}

// Recompile clears every installed rule, compiles the current settings and installs
// the result. A failure after the clear leaves the table empty until the next run.
func (u *RuleUpdater) Recompile(ctx context.Context) ([]models.CompiledRule, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	start := time.Now()
	defer func() {
		u.metrics.RecompileSeconds.Observe(time.Since(start).Seconds())
	}()

	settings, err := u.settings.Get(ctx, models.DefaultSettings())
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	existing, err := u.rules.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active rules: %w", err)
	}
	if len(existing) > 0 {
		ids := make([]int, len(existing))
		for i, r := range existing {
			ids[i] = r.ID
		}
		if err := u.rules.Replace(ctx, models.RuleUpdate{RemoveRuleIDs: ids}); err != nil {
			return nil, fmt.Errorf("removing %d active rules: %w", len(ids), err)
		}
		u.metrics.ActiveRules.Set(0)
	}

	newRules := CompileRules(settings)
	if len(newRules) > 0 {
		if err := u.rules.Replace(ctx, models.RuleUpdate{AddRules: newRules}); err != nil {
			return nil, fmt.Errorf("installing %d rules: %w", len(newRules), err)
		}
	}
	u.metrics.ActiveRules.Set(float64(len(newRules)))

	logger.Info("Rules recompiled: enabled=%t mode=%s removed=%d installed=%d", settings.Enabled, settings.Mode, len(existing), len(newRules))
	return newRules, nil
}

func (u *RuleUpdater) run(ctx context.Context, trigger string) {
	if _, err := u.Recompile(ctx); err != nil {
		u.metrics.RecompilesTotal.WithLabelValues(trigger, "error").Inc()
		logger.Error("Failed to update rules (%s): %v", trigger, err)
		return
	}
	u.metrics.RecompilesTotal.WithLabelValues(trigger, "ok").Inc()
}

// OnInstalled handles the first start of a fresh installation.
func (u *RuleUpdater) OnInstalled(ctx context.Context) {
	u.run(ctx, TriggerInstalled)
}

// OnStartup handles every later start.
func (u *RuleUpdater) OnStartup(ctx context.Context) {
	u.run(ctx, TriggerStartup)
}

// HandleSettingsChange is registered as a settings listener. Only the local namespace
// triggers a rebuild. The settings are already committed, so the rebuild runs to
// completion even when the writer's context is cancelled.
func (u *RuleUpdater) HandleSettingsChange(ctx context.Context, change database.Change) {
	if change.Namespace != database.NamespaceLocal {
		logger.Debug("Ignoring settings change in namespace %q.", change.Namespace)
		return
	}
	u.metrics.SettingsChanges.Inc()
	u.run(context.WithoutCancel(ctx), TriggerChange)
}

// RecompileNow runs a manual rebuild and reports its error to the caller.
func (u *RuleUpdater) RecompileNow(ctx context.Context) ([]models.CompiledRule, error) {
	rules, err := u.Recompile(ctx)
	result := "ok"
	if err != nil {
		result = "error"
	}
	u.metrics.RecompilesTotal.WithLabelValues(TriggerManual, result).Inc()
	return rules, err
}
