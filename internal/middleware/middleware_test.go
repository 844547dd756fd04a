package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/contextkeys"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier map[string]*domain.Principal

func (s stubVerifier) VerifyToken(token string) (*domain.Principal, error) {
	if p, ok := s[token]; ok {
		return p, nil
	}
	return nil, errors.New("bad token")
}

func echoPrincipal(w http.ResponseWriter, r *http.Request) {
	p := contextkeys.PrincipalFrom(r.Context())
	_ = json.NewEncoder(w).Encode(p)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAuth(t *testing.T) {
	user := &domain.Principal{ID: "user-1", Role: domain.RoleUser, Active: true}
	h := Auth(stubVerifier{"good": user})(http.HandlerFunc(echoPrincipal))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer good", http.StatusOK},
		{"lowercase scheme", "bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, "not_authenticated", decodeError(t, rec)["code"])
				return
			}
			var got domain.Principal
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, "user-1", got.ID)
		})
	}
}

func TestAdminOnly(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := AdminOnly(ok)

	for _, tc := range []struct {
		name   string
		p      *domain.Principal
		status int
	}{
		{"anonymous", nil, http.StatusForbidden},
		{"user", &domain.Principal{ID: "u", Role: domain.RoleUser}, http.StatusForbidden},
		{"admin", &domain.Principal{ID: "a", Role: domain.RoleAdmin}, http.StatusNoContent},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
			req = req.WithContext(contextkeys.WithPrincipal(req.Context(), tc.p))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	defer rl.Stop()
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", ip)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2"), "buckets are per client")
}

func TestRateLimiterCustomKeyAndSweep(t *testing.T) {
	rl := NewRateLimiter(0.001, 1).WithKey(func(r *http.Request) string { return r.Header.Get("X-API-Key") })
	defer rl.Stop()

	assert.True(t, rl.allow("k1"))
	assert.False(t, rl.allow("k1"))
	assert.True(t, rl.allow("k2"))

	rl.sweep(time.Now().Add(time.Hour))
	assert.True(t, rl.allow("k1"), "idle buckets are forgotten")
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", extractClientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	assert.Equal(t, "198.51.100.7", extractClientIP(req))

	req.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", extractClientIP(req))
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", decodeError(t, rec)["code"])
}

func TestLoggerAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	var seen string
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = contextkeys.RequestIDFrom(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, float64(http.StatusTeapot), line["status"])
	assert.Equal(t, seen, line["request_id"])
	assert.Equal(t, "/health", line["path"])
}
