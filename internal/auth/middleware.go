package auth

import (
	"net/http"
	"strings"
)

// Middleware is a chi-compatible HTTP middleware that enforces bearer-token authentication.
//
// Public paths that bypass auth:
//   - GET /api/health
//
// Requests that fail auth receive a 401 JSON response.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) || m.isAuthenticated(r) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("WWW-Authenticate", `Bearer realm="ovpn-issuer"`)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	})
}

func (m *Manager) isAuthenticated(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return false
	}
	return m.ValidateToken(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
}

func isPublicPath(path string) bool {
	return path == "/api/health"
}
