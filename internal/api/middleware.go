package api

import (
	"net/http"
	"strings"

	"github.com/shelfsyncapp/shelfsync-agent/internal/http/response"
)

// requireAuth validates the bearer token on peer endpoints. Every
// failure mode gets the same 401 so probes cannot distinguish a missing
// header from a revoked token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if !s.auth.ValidateToken(token) {
			response.Unauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from the Authorization header.
// Returns "" when the header is missing or malformed.
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
