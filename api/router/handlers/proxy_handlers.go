package handlers

import (
	"encoding/json"
	"net/http"
	"uaswitch/core"
	"uaswitch/logger"
	"uaswitch/models"
)

// ProbeHandler sends a GET to the given URL with the User-Agent the active rules
// produce for it and returns what the server answered.
// @Summary Probe a URL with the effective User-Agent
// @Tags Probe
// @Accept json
// @Produce json
// @Param request body models.ProbeRequest true "URL and resource type"
// @Success 200 {object} models.ProbeResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /probe [post]
func (h *Handlers) ProbeHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ProbeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("ProbeHandler: Error decoding request body: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	rules, _ := h.Rules.Snapshot()
	if _, err := core.MatchURL(rules, req.URL, req.ResourceType); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := core.Probe(r.Context(), rules, req.URL, req.ResourceType, h.Probe)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
