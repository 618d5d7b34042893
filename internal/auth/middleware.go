package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/loungeskip/loungeskip/internal/api"
	"github.com/loungeskip/loungeskip/internal/apperrors"
)

type contextKey string

const usernameKey contextKey = "username"

// exemptPaths are reachable without a token.
var exemptPaths = map[string]struct{}{
	"/api/health":     {},
	"/api/auth/login": {},
}

// Middleware enforces a bearer token on every API route except the
// exempt ones.
func (t *TokenIssuer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, exempt := exemptPaths[r.URL.Path]; exempt {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			api.WriteError(w, r, apperrors.NewUnauthorizedError("missing authorization header"))
			return
		}
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			api.WriteError(w, r, apperrors.NewUnauthorizedError("malformed authorization header"))
			return
		}

		claims, err := t.VerifyToken(tokenString)
		if err != nil {
			api.WriteError(w, r, apperrors.NewUnauthorizedError("invalid or expired token"))
			return
		}

		ctx := context.WithValue(r.Context(), usernameKey, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUsername returns the authenticated username, if any.
func GetUsername(r *http.Request) string {
	if value := r.Context().Value(usernameKey); value != nil {
		if username, ok := value.(string); ok {
			return username
		}
	}
	return ""
}
