package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/procat/backend/internal/apperr"
	"github.com/procat/backend/internal/httpapi"
)

type ctxKey int

const claimsKey ctxKey = iota

// FromContext returns the verified claims stored by Middleware, or nil.
func FromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// Middleware rejects requests without a valid bearer token and stores the
// verified claims in the request context.
func Middleware(verifier *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				httpapi.WriteError(w, r, apperr.New(apperr.KindUnauthorized, "missing bearer token"))
				return
			}
			claims, err := verifier.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				httpapi.WriteError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a handler to the given roles. Must run after Middleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := FromContext(r.Context())
			if claims == nil {
				httpapi.WriteError(w, r, apperr.New(apperr.KindUnauthorized, "missing bearer token"))
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				httpapi.WriteError(w, r, apperr.New(apperr.KindForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
