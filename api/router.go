package api

import (
	"net/http"
	"uaswitch/api/router/handlers"
	"uaswitch/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates the API router. All registered paths are relative to the /api base path.
func NewRouter(h *handlers.Handlers) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	handlers.RegisterHealthRoutes(router)
	handlers.RegisterVersionRoutes(router)
	h.RegisterSettingsRoutes(router)
	h.RegisterRuleRoutes(router)
	h.RegisterProbeRoutes(router)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		logger.Error("API SUB-ROUTER CATCH-ALL: Unhandled route relative to /api: %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	})

	return router
}
