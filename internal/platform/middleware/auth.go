package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// CapabilityVerifier validates a bearer capability token for a purpose.
type CapabilityVerifier interface {
	Verify(tokenString, purpose string) (*CapabilityClaims, error)
}

// CapabilityClaims represents the claims we expect from the verifier.
type CapabilityClaims struct {
	VoterID      string
	CredentialID string
	TokenID      string
	Purpose      string
}

// Context keys for storing verified capability information.
type contextKeyVoterID struct{}
type contextKeyCredentialID struct{}
type contextKeyTokenID struct{}

var (
	ContextKeyVoterID      = contextKeyVoterID{}
	ContextKeyCredentialID = contextKeyCredentialID{}
	ContextKeyTokenID      = contextKeyTokenID{}
)

// GetVoterID retrieves the authenticated voter ID from the context.
func GetVoterID(ctx context.Context) string {
	voterID, ok := ctx.Value(ContextKeyVoterID).(string)
	if !ok {
		return ""
	}
	return voterID
}

// GetCredentialID retrieves the redeemed credential ID from the context.
func GetCredentialID(ctx context.Context) string {
	credentialID, ok := ctx.Value(ContextKeyCredentialID).(string)
	if !ok {
		return ""
	}
	return credentialID
}

// GetTokenID retrieves the capability JTI from the context.
func GetTokenID(ctx context.Context) string {
	tokenID, ok := ctx.Value(ContextKeyTokenID).(string)
	if !ok {
		return ""
	}
	return tokenID
}

// RequireCapability enforces a bearer capability of the given purpose and
// places its claims in the request context. Expired and mispurposed tokens
// are rejected uniformly to avoid leaking token state.
func RequireCapability(verifier CapabilityVerifier, purpose string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				unauthorized(w, r, logger, "missing bearer capability")
				return
			}

			claims, err := verifier.Verify(token, purpose)
			if err != nil {
				logger.WarnContext(r.Context(), "capability rejected",
					"error", err,
					"purpose", purpose,
					"request_id", GetRequestID(r.Context()),
				)
				unauthorized(w, r, logger, "invalid or expired capability")
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, ContextKeyVoterID, claims.VoterID)
			ctx = context.WithValue(ctx, ContextKeyCredentialID, claims.CredentialID)
			ctx = context.WithValue(ctx, ContextKeyTokenID, claims.TokenID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, logger *slog.Logger, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if _, err := w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`)); err != nil {
		logger.ErrorContext(r.Context(), "failed to write unauthorized response",
			"error", err,
			"request_id", GetRequestID(r.Context()),
		)
	}
}
