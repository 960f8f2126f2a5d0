package middleware

import (
	"log/slog"
	"net/http"

	"github.com/cyvote/backend-cyvote-sub001/pkg/platform/secrets"
)

// RequireAdminToken guards administrative endpoints. The expected token is
// stored bcrypt-hashed so a leaked config file does not reveal it.
func RequireAdminToken(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Admin-Token")
			if token == "" || tokenHash == "" || secrets.Verify(token, tokenHash) != nil {
				logger.WarnContext(r.Context(), "admin token mismatch",
					"request_id", GetRequestID(r.Context()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
