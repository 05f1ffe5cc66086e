package handlers

import (
	"encoding/json"
	"net/http"
	"uaswitch/core"
	"uaswitch/database"
	"uaswitch/logger"
	"uaswitch/models"
)

// Handlers carries the collaborators every API handler needs.
type Handlers struct {
	Settings *database.SettingsStore
	Rules    *database.RuleTable
	Updater  *core.RuleUpdater
	Probe    core.ProbeOptions
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Message: message})
}
