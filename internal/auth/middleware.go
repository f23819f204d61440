package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Middleware authenticates every request on its own: a bearer session JWT
// issued by Authorizer.IssueToken. There is no API key, OIDC, or dev-header
// fallback — the GitHub OAuth dance (pkg/oauthflow) is the only way to
// obtain a token.
func Middleware(authorizer *Authorizer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				respondErr(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

			identity, err := authorizer.ValidateToken(raw)
			if err != nil {
				logger.Warn("session token validation failed", "error", err)
				respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondErr(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errStr,
		"message": message,
	})
}
