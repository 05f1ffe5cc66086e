package handlers

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handlers) RegisterProbeRoutes(r chi.Router) {
	r.Post("/probe", h.ProbeHandler)
}
