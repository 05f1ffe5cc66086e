package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"uaswitch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "uaswitch.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

type changeRecorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *changeRecorder) listen(_ context.Context, c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *changeRecorder) all() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Change(nil), r.changes...)
}

func TestSettingsStore_GetAppliesDefaults(t *testing.T) {
	db, _ := openTestDB(t)
	store := NewSettingsStore(db)

	got, err := store.Get(context.Background(), models.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), got)
}

func TestSettingsStore_SetWritesOnlyPatchedKeys(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	store := NewSettingsStore(db)

	enabled := true
	ua := "UA-1"
	require.NoError(t, store.Set(ctx, models.SettingsPatch{Enabled: &enabled, UserAgent: &ua}))

	got, err := store.Get(ctx, models.DefaultSettings())
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, "UA-1", got.UserAgent)
	assert.Equal(t, models.ModeAll, got.Mode)
	assert.Equal(t, models.DefaultExcludedDomains, got.ExcludedDomains)

	raw, err := store.GetSetting(ctx, models.SettingsModeKey)
	require.NoError(t, err)
	assert.Empty(t, raw, "mode was never written")
}

func TestSettingsStore_SaveOverwritesEveryKey(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	store := NewSettingsStore(db)

	want := models.Settings{
		Enabled:         true,
		Mode:            models.ModePerSite,
		UserAgent:       "global",
		SiteRules:       []models.SiteRule{{Domain: "a.com", UserAgent: "UA1"}, {Domain: "", UserAgent: "UA2"}},
		CustomPresets:   []models.CustomPreset{{Name: "Safari", UserAgent: "Mozilla/5.0 Safari"}},
		ExcludedDomains: []string{},
	}
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Get(ctx, models.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSettingsStore_NotifiesLocalNamespace(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	store := NewSettingsStore(db)
	rec := &changeRecorder{}
	store.OnChanged(rec.listen)

	mode := models.ModePerSite
	require.NoError(t, store.Set(ctx, models.SettingsPatch{Mode: &mode}))
	require.NoError(t, store.Set(ctx, models.SettingsPatch{}))

	changes := rec.all()
	require.Len(t, changes, 1, "an empty patch writes nothing")
	assert.Equal(t, NamespaceLocal, changes[0].Namespace)
	assert.Equal(t, []string{models.SettingsModeKey}, changes[0].Keys)
	assert.Equal(t, int64(1), changes[0].Revision)
}

func TestSettingsStore_CheckExternalChange(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)

	daemon := NewSettingsStore(db)
	require.NoError(t, daemon.SyncRevision(ctx))
	rec := &changeRecorder{}
	daemon.OnChanged(rec.listen)

	require.NoError(t, daemon.CheckExternalChange(ctx))
	assert.Empty(t, rec.all(), "nothing changed yet")

	cli := NewSettingsStore(db)
	ua := "from-cli"
	require.NoError(t, cli.Set(ctx, models.SettingsPatch{UserAgent: &ua}))

	require.NoError(t, daemon.CheckExternalChange(ctx))
	require.NoError(t, daemon.CheckExternalChange(ctx))
	changes := rec.all()
	require.Len(t, changes, 1, "each revision is reported once")
	assert.Equal(t, NamespaceLocal, changes[0].Namespace)
	assert.Nil(t, changes[0].Keys)
	assert.Equal(t, int64(1), changes[0].Revision)
}

func TestSettingsStore_OwnWritesAreNotExternal(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	store := NewSettingsStore(db)
	rec := &changeRecorder{}
	store.OnChanged(rec.listen)

	enabled := true
	require.NoError(t, store.Set(ctx, models.SettingsPatch{Enabled: &enabled}))
	require.NoError(t, store.CheckExternalChange(ctx))
	assert.Len(t, rec.all(), 1)
}

func TestSettingsStore_Installed(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	store := NewSettingsStore(db)

	installed, err := store.IsInstalled(ctx)
	require.NoError(t, err)
	assert.False(t, installed)

	require.NoError(t, store.MarkInstalled(ctx, "0.1.0"))
	installed, err = store.IsInstalled(ctx)
	require.NoError(t, err)
	assert.True(t, installed)
}

func TestSettingsStore_Presets(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	store := NewSettingsStore(db)

	_, err := store.AddPreset(ctx, "  ", "UA")
	require.ErrorIs(t, err, ErrInvalidPreset)
	_, err = store.AddPreset(ctx, "Name", "")
	require.ErrorIs(t, err, ErrInvalidPreset)

	first, err := store.AddPreset(ctx, " Firefox ", " Mozilla/5.0 Firefox ")
	require.NoError(t, err)
	assert.Equal(t, "Firefox", first.Name)
	assert.Equal(t, "Mozilla/5.0 Firefox", first.UserAgent)
	assert.NotEmpty(t, first.ID)

	second, err := store.AddPreset(ctx, "Chrome", "Mozilla/5.0 Chrome")
	require.NoError(t, err)

	presets, err := store.ListPresets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.CustomPreset{first, second}, presets)

	removed, err := store.DeletePreset(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, removed)

	removed, err = store.DeletePreset(ctx, "0")
	require.NoError(t, err)
	assert.Equal(t, second, removed)

	_, err = store.DeletePreset(ctx, "0")
	require.ErrorIs(t, err, ErrPresetNotFound)
}

func TestSettingsStore_ConcurrentPresetAdds(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	store := NewSettingsStore(db)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.AddPreset(ctx, fmt.Sprintf("p%d", i), "UA")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	presets, err := store.ListPresets(ctx)
	require.NoError(t, err)
	assert.Len(t, presets, n)
}

func TestSettingsStore_ConcurrentSaveKeepsPresets(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	store := NewSettingsStore(db)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := store.AddPreset(ctx, fmt.Sprintf("p%d", i), "UA")
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			err := store.Update(ctx, func(current models.Settings) (models.SettingsPatch, error) {
				next := models.Settings{Enabled: true, Mode: models.ModeAll, UserAgent: fmt.Sprintf("UA%d", i)}
				next.CustomPresets = current.CustomPresets
				return next.FullPatch(), nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	presets, err := store.ListPresets(ctx)
	require.NoError(t, err)
	assert.Len(t, presets, n)
}

func TestSettingsStore_ConcurrentPresetDeletes(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	store := NewSettingsStore(db)

	var ids []string
	for i := 0; i < 6; i++ {
		p, err := store.AddPreset(ctx, fmt.Sprintf("p%d", i), "UA")
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids[:4] {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := store.DeletePreset(ctx, id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	presets, err := store.ListPresets(ctx)
	require.NoError(t, err)
	require.Len(t, presets, 2)
	assert.Equal(t, ids[4], presets[0].ID)
	assert.Equal(t, ids[5], presets[1].ID)
}

func TestSettingsStore_UpdateErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	store := NewSettingsStore(db)
	rec := &changeRecorder{}
	store.OnChanged(rec.listen)

	boom := errors.New("boom")
	err := store.Update(ctx, func(models.Settings) (models.SettingsPatch, error) {
		return models.SettingsPatch{}, boom
	})
	require.ErrorIs(t, err, boom)

	revision, err := store.Revision(ctx)
	require.NoError(t, err)
	assert.Zero(t, revision)
	assert.Empty(t, rec.all())
}

func TestFindPreset(t *testing.T) {
	presets := []models.CustomPreset{
		{Name: "legacy", UserAgent: "UA0"},
		{ID: "abc", Name: "new", UserAgent: "UA1"},
	}

	idx, ok := FindPreset(presets, "abc")
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	idx, ok = FindPreset(presets, "0")
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	_, ok = FindPreset(presets, "2")
	assert.False(t, ok)
	_, ok = FindPreset(presets, "-1")
	assert.False(t, ok)
}

func TestSettingsStore_ResetRestoresDefaults(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	store := NewSettingsStore(db)

	_, err := store.AddPreset(ctx, "p", "ua")
	require.NoError(t, err)
	enabled := true
	require.NoError(t, store.Set(ctx, models.SettingsPatch{Enabled: &enabled}))

	require.NoError(t, store.Reset(ctx))
	got, err := store.Get(ctx, models.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), got)
}
