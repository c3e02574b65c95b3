package middleware

import (
	"net/http"
	"strings"

	"concord/internal/auth"
	"concord/internal/httputil"
)

// unauthenticatedPrefixes are routes that carry their own authentication:
// gateway webhooks verify signatures, internal endpoints verify the composer
// secret, and health is open.
var unauthenticatedPrefixes = []string{
	"/health",
	"/api/webhooks/",
	"/api/internal/",
}

// Auth verifies the Bearer token on every API route and injects the caller's
// user id into the request context.
func Auth(verifier auth.JWTVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range unauthenticatedPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				httputil.RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, httputil.WithUserID(r, claims.GetUserID()))
		})
	}
}
