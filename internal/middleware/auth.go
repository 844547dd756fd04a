package middleware

import (
	"net/http"
	"strings"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/contextkeys"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/handler"
)

// TokenVerifier turns a bearer token into the caller it identifies.
type TokenVerifier interface {
	VerifyToken(token string) (*domain.Principal, error)
}

// Auth creates a JWT authentication middleware. The verified Principal is
// stored on the request context for handlers to pass to services.
func Auth(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				handler.Error(w, domain.ErrUnauthorized("no token provided"))
				return
			}

			principal, err := verifier.VerifyToken(token)
			if err != nil {
				handler.Error(w, domain.ErrUnauthorized("invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(contextkeys.WithPrincipal(r.Context(), principal)))
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
