package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/contextkeys"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const requestIDHeader = "X-Request-ID"

// Logger logs each HTTP request with method, path, status, and duration. It
// also assigns a request id, echoed in the response header and attached to
// the request's logger.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" || len(reqID) > 64 {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)

		logger := log.With().Str("request_id", reqID).Logger()
		ctx := context.WithValue(r.Context(), contextkeys.RequestID, reqID)
		ctx = logger.WithContext(ctx)

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r.WithContext(ctx))

		var ev *zerolog.Event
		switch {
		case ww.status >= 500:
			ev = logger.Error()
		case ww.status >= 400:
			ev = logger.Warn()
		default:
			ev = logger.Info()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.status).
			Dur("duration", time.Since(start)).
			Str("remote", extractClientIP(r)).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
