package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/handler"
	"github.com/rs/zerolog/log"
)

// Recovery catches panics and returns a 500 error instead of crashing the server.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log.Error().
					Interface("panic", err).
					Bytes("stack", debug.Stack()).
					Str("path", r.URL.Path).
					Msg("handler panicked")
				handler.JSON(w, http.StatusInternalServerError, map[string]string{
					"error": "internal server error",
					"code":  "internal",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
