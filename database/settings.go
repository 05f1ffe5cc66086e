package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"uaswitch/logger"
	"uaswitch/models"

	"github.com/google/uuid"
)

// NamespaceLocal tags changes made to the local settings record.
const NamespaceLocal = "local"

const installedKey = "_installed"

var (
	ErrPresetNotFound = errors.New("preset not found")
	ErrInvalidPreset  = errors.New("preset name and user agent are required")
)

// Change is delivered to listeners after settings were written.
type Change struct {
	Namespace string
	Keys      []string // nil when the writer is another process and the keys are unknown
	Revision  int64
}

// ChangeListener receives settings change notifications.
type ChangeListener func(ctx context.Context, change Change)

// SettingsStore persists the settings record in app_settings, one row per key,
// and notifies listeners on every write.
type SettingsStore struct {
	db *sql.DB

	writeMu sync.Mutex

	mu           sync.Mutex
	listeners    []ChangeListener
	lastRevision int64
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// OnChanged registers a listener for settings changes.
func (s *SettingsStore) OnChanged(l ChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// GetSetting retrieves the raw value stored under key. A missing key yields "" and no error.
func (s *SettingsStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM app_settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get setting '%s': %w", key, err)
	}
	return value, nil
}

func setSettingTx(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO app_settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)", key, value)
	if err != nil {
		return fmt.Errorf("failed to execute set setting for key '%s': %w", key, err)
	}
	return nil
}

// Get returns the settings record. Keys that were never written take their value from defaults.
func (s *SettingsStore) Get(ctx context.Context, defaults models.Settings) (models.Settings, error) {
	return readSettings(ctx, s.db, defaults)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func readSettings(ctx context.Context, q queryer, defaults models.Settings) (models.Settings, error) {
	result := defaults
	rows, err := q.QueryContext(ctx, "SELECT key, value FROM app_settings WHERE key IN (?, ?, ?, ?, ?, ?)",
		models.SettingsEnabledKey, models.SettingsModeKey, models.SettingsUserAgentKey,
		models.SettingsSiteRulesKey, models.SettingsCustomPresetsKey, models.SettingsExcludedDomainsKey)
	if err != nil {
		return result, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return result, fmt.Errorf("scanning settings row: %w", err)
		}
		var target interface{}
		switch key {
		case models.SettingsEnabledKey:
			target = &result.Enabled
		case models.SettingsModeKey:
			target = &result.Mode
		case models.SettingsUserAgentKey:
			target = &result.UserAgent
		case models.SettingsSiteRulesKey:
			target = &result.SiteRules
		case models.SettingsCustomPresetsKey:
			target = &result.CustomPresets
		case models.SettingsExcludedDomainsKey:
			target = &result.ExcludedDomains
		default:
			continue
		}
		if err := json.Unmarshal([]byte(value), target); err != nil {
			logger.Error("SettingsStore.Get: Error unmarshalling setting '%s': %v. Stored value: %s", key, err, value)
			return result, fmt.Errorf("failed to unmarshal setting '%s': %w", key, err)
		}
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("iterating settings rows: %w", err)
	}

	if result.SiteRules == nil {
		result.SiteRules = []models.SiteRule{}
	}
	if result.CustomPresets == nil {
		result.CustomPresets = []models.CustomPreset{}
	}
	if result.ExcludedDomains == nil {
		result.ExcludedDomains = []string{}
	}
	return result, nil
}

// SettingsUpdate computes the patch to write from the record as currently stored.
type SettingsUpdate func(current models.Settings) (models.SettingsPatch, error)

// Set writes the keys present in patch in one transaction, bumps the revision and
// notifies listeners in the local namespace.
func (s *SettingsStore) Set(ctx context.Context, patch models.SettingsPatch) error {
	if len(patch.Keys()) == 0 {
		return nil
	}
	return s.write(ctx, func(*sql.Tx) (models.SettingsPatch, error) {
		return patch, nil
	})
}

// Update reads the record and writes the patch fn derives from it in one
// transaction. Writers of this store are serialized, so read-modify-write
// callers never lose each other's changes. Listeners are notified after commit.
func (s *SettingsStore) Update(ctx context.Context, fn SettingsUpdate) error {
	return s.write(ctx, func(tx *sql.Tx) (models.SettingsPatch, error) {
		current, err := readSettings(ctx, tx, models.DefaultSettings())
		if err != nil {
			return models.SettingsPatch{}, err
		}
		return fn(current)
	})
}

// write runs patchFn and stores its patch in one transaction, then notifies
// listeners. A plain Set never reads the record, so it can overwrite a key that
// no longer decodes.
func (s *SettingsStore) write(ctx context.Context, patchFn func(tx *sql.Tx) (models.SettingsPatch, error)) error {
	s.writeMu.Lock()
	change, err := s.commit(ctx, patchFn)
	s.writeMu.Unlock()
	if err != nil || change == nil {
		return err
	}

	logger.Debug("Settings saved (keys: %s, revision %d).", strings.Join(change.Keys, ", "), change.Revision)
	s.notify(ctx, *change)
	return nil
}

func (s *SettingsStore) commit(ctx context.Context, patchFn func(tx *sql.Tx) (models.SettingsPatch, error)) (*Change, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning settings transaction: %w", err)
	}
	defer tx.Rollback()

	patch, err := patchFn(tx)
	if err != nil {
		return nil, err
	}
	keys := patch.Keys()
	if len(keys) == 0 {
		return nil, nil
	}

	values := patchValues(patch)
	for _, key := range keys {
		encoded, err := json.Marshal(values[key])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal setting '%s': %w", key, err)
		}
		if err := setSettingTx(ctx, tx, key, string(encoded)); err != nil {
			return nil, err
		}
	}

	revision, err := bumpRevisionTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing settings: %w", err)
	}

	s.mu.Lock()
	if revision > s.lastRevision {
		s.lastRevision = revision
	}
	s.mu.Unlock()

	return &Change{Namespace: NamespaceLocal, Keys: keys, Revision: revision}, nil
}

func patchValues(patch models.SettingsPatch) map[string]interface{} {
	values := map[string]interface{}{}
	if patch.Enabled != nil {
		values[models.SettingsEnabledKey] = *patch.Enabled
	}
	if patch.Mode != nil {
		values[models.SettingsModeKey] = *patch.Mode
	}
	if patch.UserAgent != nil {
		values[models.SettingsUserAgentKey] = *patch.UserAgent
	}
	if patch.SiteRules != nil {
		rules := *patch.SiteRules
		if rules == nil {
			rules = []models.SiteRule{}
		}
		values[models.SettingsSiteRulesKey] = rules
	}
	if patch.CustomPresets != nil {
		presets := *patch.CustomPresets
		if presets == nil {
			presets = []models.CustomPreset{}
		}
		values[models.SettingsCustomPresetsKey] = presets
	}
	if patch.ExcludedDomains != nil {
		excluded := *patch.ExcludedDomains
		if excluded == nil {
			excluded = []string{}
		}
		values[models.SettingsExcludedDomainsKey] = excluded
	}
	return values
}

// Save overwrites the whole record.
func (s *SettingsStore) Save(ctx context.Context, settings models.Settings) error {
	return s.Set(ctx, settings.FullPatch())
}

func bumpRevisionTx(ctx context.Context, tx *sql.Tx) (int64, error) {
	var current string
	err := tx.QueryRowContext(ctx, "SELECT value FROM app_settings WHERE key = ?", models.SettingsRevisionKey).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("reading settings revision: %w", err)
	}
	var revision int64
	if current != "" {
		revision, err = strconv.ParseInt(current, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing settings revision %q: %w", current, err)
		}
	}
	revision++
	if err := setSettingTx(ctx, tx, models.SettingsRevisionKey, strconv.FormatInt(revision, 10)); err != nil {
		return 0, err
	}
	return revision, nil
}

// Revision returns the stored settings revision (0 before the first write).
func (s *SettingsStore) Revision(ctx context.Context) (int64, error) {
	value, err := s.GetSetting(ctx, models.SettingsRevisionKey)
	if err != nil || value == "" {
		return 0, err
	}
	revision, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing settings revision %q: %w", value, err)
	}
	return revision, nil
}

// SyncRevision records the current revision as seen without notifying anyone.
func (s *SettingsStore) SyncRevision(ctx context.Context) error {
	revision, err := s.Revision(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lastRevision = revision
	s.mu.Unlock()
	return nil
}

// CheckExternalChange notifies listeners when another process moved the revision
// past the last one this store saw. It is driven by the database file watcher.
func (s *SettingsStore) CheckExternalChange(ctx context.Context) error {
	revision, err := s.Revision(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if revision <= s.lastRevision {
		s.mu.Unlock()
		return nil
	}
	s.lastRevision = revision
	s.mu.Unlock()

	logger.Info("Settings changed by another process (revision %d).", revision)
	s.notify(ctx, Change{Namespace: NamespaceLocal, Revision: revision})
	return nil
}

func (s *SettingsStore) notify(ctx context.Context, change Change) {
	s.mu.Lock()
	listeners := make([]ChangeListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(ctx, change)
	}
}

// IsInstalled reports whether MarkInstalled was ever called on this database.
func (s *SettingsStore) IsInstalled(ctx context.Context) (bool, error) {
	value, err := s.GetSetting(ctx, installedKey)
	if err != nil {
		return false, err
	}
	return value != "", nil
}

// MarkInstalled records the installation with the given version.
func (s *SettingsStore) MarkInstalled(ctx context.Context, version string) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO app_settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)", installedKey, version)
	if err != nil {
		return fmt.Errorf("marking installation: %w", err)
	}
	return nil
}

// Reset overwrites the record with the defaults.
func (s *SettingsStore) Reset(ctx context.Context) error {
	return s.Save(ctx, models.DefaultSettings())
}

// ListPresets returns the saved custom presets.
func (s *SettingsStore) ListPresets(ctx context.Context) ([]models.CustomPreset, error) {
	settings, err := s.Get(ctx, models.DefaultSettings())
	if err != nil {
		return nil, err
	}
	return settings.CustomPresets, nil
}

// AddPreset appends a preset and persists the preset list immediately.
func (s *SettingsStore) AddPreset(ctx context.Context, name, userAgent string) (models.CustomPreset, error) {
	name = strings.TrimSpace(name)
	userAgent = strings.TrimSpace(userAgent)
	if name == "" || userAgent == "" {
		return models.CustomPreset{}, ErrInvalidPreset
	}

	preset := models.CustomPreset{ID: uuid.New().String(), Name: name, UserAgent: userAgent}
	err := s.Update(ctx, func(current models.Settings) (models.SettingsPatch, error) {
		presets := append(current.CustomPresets, preset)
		return models.SettingsPatch{CustomPresets: &presets}, nil
	})
	if err != nil {
		return models.CustomPreset{}, fmt.Errorf("saving presets: %w", err)
	}
	return preset, nil
}

// FindPreset resolves ref as a preset id, or as a zero-based index when it is an integer.
func FindPreset(presets []models.CustomPreset, ref string) (int, bool) {
	for i, p := range presets {
		if p.ID != "" && p.ID == ref {
			return i, true
		}
	}
	if idx, err := strconv.Atoi(ref); err == nil && idx >= 0 && idx < len(presets) {
		return idx, true
	}
	return -1, false
}

// DeletePreset removes the preset identified by ref and persists the list immediately.
func (s *SettingsStore) DeletePreset(ctx context.Context, ref string) (models.CustomPreset, error) {
	var removed models.CustomPreset
	err := s.Update(ctx, func(current models.Settings) (models.SettingsPatch, error) {
		presets := current.CustomPresets
		idx, ok := FindPreset(presets, ref)
		if !ok {
			return models.SettingsPatch{}, fmt.Errorf("%w: %s", ErrPresetNotFound, ref)
		}
		removed = presets[idx]
		presets = append(presets[:idx:idx], presets[idx+1:]...)
		return models.SettingsPatch{CustomPresets: &presets}, nil
	})
	if err != nil {
		if errors.Is(err, ErrPresetNotFound) {
			return models.CustomPreset{}, err
		}
		return models.CustomPreset{}, fmt.Errorf("saving presets: %w", err)
	}
	return removed, nil
}
