// Package apicors provides CORS middleware for API endpoints that use
// API key authentication instead of cookies.
//
// With API key auth there are no cookies to protect, so origins can be
// "*" and AllowCredentials stays false. This is the CORS configuration
// for external producers (game clients, upload helpers, third-party
// integrations) that push audit batches via the HTTP API.
package apicors

import (
	"net/http"
)

// Middleware returns CORS middleware suitable for API key authenticated
// endpoints. It allows any origin, common API methods and headers, and
// answers preflight OPTIONS requests directly.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Accept")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
