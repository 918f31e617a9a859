// Package api implements the bitácora REST API using chi.
package api

import (
	"net/http"
	"strings"

	"github.com/starford/bitacora/internal/pingate"
)

// AuthMiddleware returns middleware that validates a PIN session token.
// If gate is nil, all requests pass through (disabled mode).
// Otherwise requests must carry "Authorization: Bearer <token>". EventSource
// clients cannot set headers, so a token query parameter is accepted too.
func AuthMiddleware(gate *pingate.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate == nil {
				next.ServeHTTP(w, r)
				return
			}
			token := r.URL.Query().Get("token")
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimPrefix(auth, "Bearer ")
			}
			if token == "" || gate.Validate(token) != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}
