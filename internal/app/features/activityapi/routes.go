// internal/app/features/activityapi/routes.go
package activityapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns a chi.Router with activity API routes mounted.
// Authentication (API key) is applied by the caller on the /api group.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/batch", h.RunBatch)
	r.Post("/audit", h.AppendAudit)
	r.Get("/report", h.LatestReport)
	return r
}
