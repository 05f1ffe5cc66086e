package handlers

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handlers) RegisterRuleRoutes(r chi.Router) {
	r.Get("/rules", h.ListRulesHandler)
	r.Post("/rules/recompile", h.RecompileRulesHandler)
	r.Get("/rules/export", h.ExportRulesHandler)
	r.Post("/rules/match", h.MatchRuleHandler)
}
