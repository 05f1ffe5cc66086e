package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"uaswitch/database"
	"uaswitch/logger"
	"uaswitch/models"

	"github.com/go-chi/chi/v5"
)

// GetSettingsHandler returns the settings record with defaults applied.
// @Summary Get settings
// @Tags Settings
// @Produce json
// @Success 200 {object} models.Settings
// @Failure 500 {object} models.ErrorResponse
// @Router /settings [get]
func (h *Handlers) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Settings.Get(r.Context(), models.DefaultSettings())
	if err != nil {
		logger.Error("GetSettingsHandler: Error reading settings: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// SaveSettingsHandler overwrites the whole settings record in one write.
// When the payload omits customPresets the stored presets are kept.
// @Summary Save settings
// @Tags Settings
// @Accept json
// @Produce json
// @Param settings body models.Settings true "Full settings record"
// @Success 200 {object} models.Settings
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /settings [put]
func (h *Handlers) SaveSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req models.Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("SaveSettingsHandler: Error decoding request body: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	keepPresets := req.CustomPresets == nil
	settings := req.Normalize()
	if settings.Mode == "" {
		settings.Mode = models.ModeAll
	}
	if !settings.Mode.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid mode: "+string(settings.Mode))
		return
	}

	err := h.Settings.Update(r.Context(), func(current models.Settings) (models.SettingsPatch, error) {
		if keepPresets {
			settings.CustomPresets = current.CustomPresets
		}
		return settings.FullPatch(), nil
	})
	if err != nil {
		logger.Error("SaveSettingsHandler: Error saving settings: %v", err)
		writeError(w, http.StatusInternalServerError, "Error saving settings: "+err.Error())
		return
	}

	logger.Info("Settings saved: enabled=%t mode=%s siteRules=%d excludedDomains=%d", settings.Enabled, settings.Mode, len(settings.SiteRules), len(settings.ExcludedDomains))
	writeJSON(w, http.StatusOK, settings)
}

// ListPresetsHandler returns the saved custom presets.
// @Summary List custom presets
// @Tags Presets
// @Produce json
// @Success 200 {array} models.CustomPreset
// @Router /settings/presets [get]
func (h *Handlers) ListPresetsHandler(w http.ResponseWriter, r *http.Request) {
	presets, err := h.Settings.ListPresets(r.Context())
	if err != nil {
		logger.Error("ListPresetsHandler: Error reading presets: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve presets")
		return
	}
	writeJSON(w, http.StatusOK, presets)
}

// CreatePresetHandler saves a named User-Agent preset immediately.
// @Summary Save a custom preset
// @Tags Presets
// @Accept json
// @Produce json
// @Param preset body models.PresetCreateRequest true "Preset"
// @Success 201 {object} models.CustomPreset
// @Failure 400 {object} models.ErrorResponse
// @Router /settings/presets [post]
func (h *Handlers) CreatePresetHandler(w http.ResponseWriter, r *http.Request) {
	var req models.PresetCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("CreatePresetHandler: Error decoding request body: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	preset, err := h.Settings.AddPreset(r.Context(), req.Name, req.UserAgent)
	if err != nil {
		if errors.Is(err, database.ErrInvalidPreset) {
			writeError(w, http.StatusBadRequest, "Please enter a preset name and a User-Agent")
			return
		}
		logger.Error("CreatePresetHandler: Error saving preset: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to save preset")
		return
	}
	logger.Info("Preset '%s' saved (id %s).", preset.Name, preset.ID)
	writeJSON(w, http.StatusCreated, preset)
}

// DeletePresetHandler removes a preset by id, or by index when ref is an integer.
// @Summary Delete a custom preset
// @Tags Presets
// @Produce json
// @Param ref path string true "Preset id or index"
// @Success 200 {object} models.CustomPreset
// @Failure 404 {object} models.ErrorResponse
// @Router /settings/presets/{ref} [delete]
func (h *Handlers) DeletePresetHandler(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	removed, err := h.Settings.DeletePreset(r.Context(), ref)
	if err != nil {
		if errors.Is(err, database.ErrPresetNotFound) {
			writeError(w, http.StatusNotFound, "Preset not found: "+ref)
			return
		}
		logger.Error("DeletePresetHandler: Error deleting preset %s: %v", ref, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete preset")
		return
	}
	logger.Info("Preset '%s' deleted.", removed.Name)
	writeJSON(w, http.StatusOK, removed)
}
