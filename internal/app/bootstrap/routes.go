// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	activityapifeature "github.com/dalemusser/kingsroom/internal/app/features/activityapi"
	healthfeature "github.com/dalemusser/kingsroom/internal/app/features/health"
	"github.com/dalemusser/kingsroom/internal/app/system/apicors"
	"github.com/dalemusser/kingsroom/internal/app/system/auth"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup,
// and the Startup hook have completed, so the pipeline pieces built in
// Startup are available here.
//
// All /api routes use API key Bearer auth with permissive CORS; there is
// no session surface in this service (identity lives in a separate
// system), so no cookies and no CSRF middleware.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	r := chi.NewRouter()

	// Request timeout middleware: prevents requests from hanging
	// indefinitely. Generous enough for a full batch run.
	r.Use(chimw.Timeout(90 * time.Second))

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	// Health endpoints are unauthenticated for probes.
	healthHandler := healthfeature.NewHandler(deps.MongoClient, tailerState(), logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	// Activity API - API key auth, no CSRF, permissive CORS.
	activityHandler := activityapifeature.NewHandler(coordinator, auditStore, latestReport, logger)
	r.Group(func(r chi.Router) {
		r.Use(apicors.Middleware())
		r.Use(auth.APIKeyAuth(appCfg.APIKey, logger))
		r.Mount("/api/activity", activityapifeature.Routes(activityHandler))
	})

	return r, nil
}

// tailerState adapts the optional tailer for the health handler without
// handing it a typed-nil interface.
func tailerState() healthfeature.TailerState {
	if tailer == nil {
		return nil
	}
	return tailer
}
