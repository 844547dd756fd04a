package middleware

import (
	"net/http"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/contextkeys"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/handler"
)

// AdminOnly middleware ensures the caller is a website administrator.
// Must be used AFTER Auth middleware.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !contextkeys.PrincipalFrom(r.Context()).IsWebsiteAdmin() {
			handler.Error(w, domain.ErrForbidden.WithMessage("forbidden: admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
