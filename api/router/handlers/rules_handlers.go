package handlers

import (
	"encoding/json"
	"net/http"
	"uaswitch/core"
	"uaswitch/logger"
	"uaswitch/models"
)

// ListRulesHandler returns the rules currently installed in the rule table.
// @Summary List active rules
// @Tags Rules
// @Produce json
// @Success 200 {array} models.CompiledRule
// @Router /rules [get]
func (h *Handlers) ListRulesHandler(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Rules.ListActive(r.Context())
	if err != nil {
		logger.Error("ListRulesHandler: Error listing rules: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list rules")
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// RecompileRulesHandler rebuilds the rule table from the stored settings.
// @Summary Recompile rules
// @Tags Rules
// @Produce json
// @Success 200 {array} models.CompiledRule
// @Failure 500 {object} models.ErrorResponse
// @Router /rules/recompile [post]
func (h *Handlers) RecompileRulesHandler(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Updater.RecompileNow(r.Context())
	if err != nil {
		logger.Error("RecompileRulesHandler: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update rules: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// ExportRulesHandler compiles the stored settings without installing the result.
// @Summary Export compiled rules
// @Tags Rules
// @Produce json
// @Success 200 {array} models.CompiledRule
// @Router /rules/export [get]
func (h *Handlers) ExportRulesHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Settings.Get(r.Context(), models.DefaultSettings())
	if err != nil {
		logger.Error("ExportRulesHandler: Error reading settings: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve settings")
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="rules.json"`)
	writeJSON(w, http.StatusOK, core.CompileRules(settings))
}

// MatchRuleHandler reports which active rule applies to a URL.
// @Summary Match a URL against the active rules
// @Tags Rules
// @Accept json
// @Produce json
// @Param request body models.RuleMatchRequest true "URL and resource type"
// @Success 200 {object} models.RuleMatchResult
// @Failure 400 {object} models.ErrorResponse
// @Router /rules/match [post]
func (h *Handlers) MatchRuleHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RuleMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	rules, _ := h.Rules.Snapshot()
	result, err := core.MatchURL(rules, req.URL, req.ResourceType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
