package middleware

import (
	"net/http"
	"strings"

	"github.com/dukerupert/recap/internal/auth"
)

// PlatformTokenHeader carries the caller's calendar-platform access token.
// It is forwarded per request and never persisted.
const PlatformTokenHeader = "X-Platform-Token"

// RequireAuth validates the bearer token and populates AuthContext.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			claims, err := auth.ParseToken(jwtSecret, raw)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ac := auth.AuthContext{
				OrgID:         claims.OrgID,
				UserEmail:     claims.Email,
				PlatformToken: r.Header.Get(PlatformTokenHeader),
			}

			ctx := auth.WithAuth(r.Context(), ac)
			Annotate(ctx, "org_id", ac.OrgID)
			Annotate(ctx, "user", ac.UserEmail)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
