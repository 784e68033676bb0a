package middleware

import (
	"context"
	"net/http"

	"github.com/snaproll/server/internal/api/respond"
	"github.com/snaproll/server/internal/auth"
)

const hostClaimsKey contextKey = "host_claims"

// HostAuth requires a valid host JWT on the request. The parsed claims are
// stored in the request context for handlers and the rate limiter.
func HostAuth(jwt *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				respond.Error(w, r, http.StatusUnauthorized, respond.CodeAuthRequired, "authentication required", err)
				return
			}

			claims, err := jwt.Validate(token)
			if err != nil {
				respond.Error(w, r, http.StatusUnauthorized, respond.CodeAuthRequired, "invalid or expired token", err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithHost(r.Context(), claims)))
		})
	}
}

// WithHost returns a context carrying host claims.
func WithHost(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, hostClaimsKey, claims)
}

// HostFromContext returns the authenticated host claims, or nil on
// unauthenticated requests.
func HostFromContext(ctx context.Context) *auth.Claims {
	if claims, ok := ctx.Value(hostClaimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}
