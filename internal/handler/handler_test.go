package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	valid   map[string]bool
	err     error
	gotKey  string
	gotSlug string
}

func (s *stubValidator) Validate(_ context.Context, rawKey, productSlug string) (*service.ValidationResult, error) {
	s.gotKey, s.gotSlug = rawKey, productSlug
	if s.err != nil {
		return nil, s.err
	}
	if !s.valid[rawKey] {
		return &service.ValidationResult{}, nil
	}
	org := "org-1"
	return &service.ValidationResult{
		Valid:          true,
		OrganizationID: &org,
		Plan:           "pro",
		Status:         domain.StatusActive,
		ExpiresAt:      time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func validateRouter(v KeyValidator) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/validate", NewValidationHandler(v).Validate)
	return r
}

func TestValidateHandler(t *testing.T) {
	stub := &stubValidator{valid: map[string]bool{"byk_good": true}}
	router := validateRouter(stub)

	tests := []struct {
		name    string
		body    string
		headers map[string]string
		status  int
		wantKey string
	}{
		{"body key", `{"api_key":"byk_good","product_slug":"ugraph"}`, nil, http.StatusOK, "byk_good"},
		{"x-api-key header", `{"product_slug":"ugraph"}`, map[string]string{"X-API-Key": "byk_good"}, http.StatusOK, "byk_good"},
		{"bearer header", `{"product_slug":"ugraph"}`, map[string]string{"Authorization": "Bearer byk_good"}, http.StatusOK, "byk_good"},
		{"unknown key", `{"api_key":"byk_bad","product_slug":"ugraph"}`, nil, http.StatusUnauthorized, "byk_bad"},
		{"no key", `{"product_slug":"ugraph"}`, nil, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", strings.NewReader(tt.body))
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.wantKey, stub.gotKey)
			assert.Equal(t, "ugraph", stub.gotSlug)

			var resp ValidateResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			if tt.status == http.StatusOK {
				require.True(t, resp.Success)
				require.NotNil(t, resp.Data)
				assert.Equal(t, "pro", resp.Data.Plan)
				assert.Equal(t, "active", resp.Data.Status)
				assert.Equal(t, "org-1", *resp.Data.OrganizationID)
			} else {
				assert.Equal(t, ValidateResponse{Error: invalidKeyMessage}, resp)
			}
		})
	}
}

func TestValidateHandlerSnakeCaseBody(t *testing.T) {
	router := validateRouter(&stubValidator{valid: map[string]bool{"byk_good": true}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", strings.NewReader(`{"api_key":"byk_good","product_slug":"ugraph"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	data := raw["data"].(map[string]interface{})
	assert.Contains(t, data, "organization_id")
	assert.Equal(t, "2026-04-01T00:00:00Z", data["expires_at"])
}

func TestValidateHandlerEmptyChunkedBody(t *testing.T) {
	stub := &stubValidator{valid: map[string]bool{"byk_good": true}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate?product_slug=ugraph", strings.NewReader(""))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	req.Header.Set("X-API-Key", "byk_good")
	rec := httptest.NewRecorder()
	validateRouter(stub).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "byk_good", stub.gotKey)
	assert.Equal(t, "ugraph", stub.gotSlug)
}

func TestValidateHandlerErrors(t *testing.T) {
	t.Run("missing product", func(t *testing.T) {
		rec := httptest.NewRecorder()
		validateRouter(&stubValidator{}).ServeHTTP(rec,
			httptest.NewRequest(http.MethodPost, "/api/v1/validate", strings.NewReader(`{"api_key":"byk_good"}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("bad json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		validateRouter(&stubValidator{}).ServeHTTP(rec,
			httptest.NewRequest(http.MethodPost, "/api/v1/validate", strings.NewReader(`{`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("store down", func(t *testing.T) {
		rec := httptest.NewRecorder()
		validateRouter(&stubValidator{err: errors.New("down")}).ServeHTTP(rec,
			httptest.NewRequest(http.MethodPost, "/api/v1/validate?product_slug=ugraph", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.NotContains(t, rec.Body.String(), "down")
	})
}

func TestErrorBody(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, domain.ErrAlreadySubscribed)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "already_subscribed", body["code"])
	assert.Equal(t, domain.ErrAlreadySubscribed.Message, body["error"])

	rec = httptest.NewRecorder()
	Error(rec, domain.ErrInternal("failed to load subscription", errors.New("pq: secret detail")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")

	rec = httptest.NewRecorder()
	Error(rec, errors.New("plain"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "plain")
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("down") })

	rec := httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"database": ok, "redis": ok}).Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok","redis":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"database": ok, "redis": down}).Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","database":"ok","redis":"error"}`, rec.Body.String())
}

func TestPlans(t *testing.T) {
	rec := httptest.NewRecorder()
	NewPlansHandler().List(rec, httptest.NewRequest(http.MethodGet, "/api/plans", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var products []domain.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Len(t, products, 3)
	assert.Equal(t, "ugraph", products[0].Slug)
}
