// ABOUTME: Bearer token authentication for the /api routes.
// ABOUTME: An empty token disables the check; the status page and health check stay public.
package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// bearerAuth rejects /api requests whose Authorization header does not carry
// the configured token.
func bearerAuth(token string) func(http.Handler) http.Handler {
	expected := []byte("Bearer " + token)
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if path != "/api" && !strings.HasPrefix(path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}
			if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), expected) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="pressroom"`)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		})
	}
}
