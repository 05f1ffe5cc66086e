package handlers

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handlers) RegisterSettingsRoutes(r chi.Router) {
	r.Get("/settings", h.GetSettingsHandler)
	r.Put("/settings", h.SaveSettingsHandler)

	r.Get("/settings/presets", h.ListPresetsHandler)
	r.Post("/settings/presets", h.CreatePresetHandler)
	r.Delete("/settings/presets/{ref}", h.DeletePresetHandler)
}
