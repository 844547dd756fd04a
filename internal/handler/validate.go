package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/service"
)

const invalidKeyMessage = "invalid or expired api key"

// KeyValidator answers whether an API key is entitled to a product.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey, productSlug string) (*service.ValidationResult, error)
}

// ValidateRequest is the body external products send.
type ValidateRequest struct {
	APIKey      string `json:"api_key"`
	ProductSlug string `json:"product_slug"`
}

// ValidateData is returned for an entitled key.
type ValidateData struct {
	OrganizationID *string   `json:"organization_id,omitempty"`
	Plan           string    `json:"plan"`
	Status         string    `json:"status"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// ValidateResponse is the envelope of the validation call.
type ValidateResponse struct {
	Success bool          `json:"success"`
	Data    *ValidateData `json:"data,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// ValidationHandler serves the public key validation call.
type ValidationHandler struct {
	svc KeyValidator
}

// NewValidationHandler creates a new ValidationHandler.
func NewValidationHandler(svc KeyValidator) *ValidationHandler {
	return &ValidationHandler{svc: svc}
}

// Validate handles POST /api/v1/validate. The key may come from the body, the
// X-API-Key header or a bearer Authorization header. Unknown, expired,
// cancelled and malformed keys all get the same 401 body.
func (h *ValidationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	// An empty body, chunked or not, leaves the key to the headers.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		JSON(w, http.StatusBadRequest, ValidateResponse{Error: "invalid JSON body"})
		return
	}
	if req.ProductSlug == "" {
		req.ProductSlug = r.URL.Query().Get("product_slug")
	}
	if req.ProductSlug == "" {
		JSON(w, http.StatusBadRequest, ValidateResponse{Error: "product_slug is required"})
		return
	}

	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		key = keyFromHeaders(r)
	}

	result, err := h.svc.Validate(r.Context(), key, req.ProductSlug)
	if err != nil {
		JSON(w, http.StatusServiceUnavailable, ValidateResponse{Error: "validation is temporarily unavailable"})
		return
	}
	if !result.Valid {
		JSON(w, http.StatusUnauthorized, ValidateResponse{Error: invalidKeyMessage})
		return
	}

	JSON(w, http.StatusOK, ValidateResponse{
		Success: true,
		Data: &ValidateData{
			OrganizationID: result.OrganizationID,
			Plan:           result.Plan,
			Status:         string(result.Status),
			ExpiresAt:      result.ExpiresAt,
		},
	})
}

func keyFromHeaders(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
