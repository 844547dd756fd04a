package handler

import (
	"net/http"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/contextkeys"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/service"
	"github.com/go-chi/chi/v5"
)

// AdminHandler handles website administrator endpoints.
type AdminHandler struct {
	subs *service.SubscriptionService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(subs *service.SubscriptionService) *AdminHandler {
	return &AdminHandler{subs: subs}
}

// Grant handles POST /api/admin/subscriptions.
func (h *AdminHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req domain.GrantRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	result, err := h.subs.Grant(r.Context(), contextkeys.PrincipalFrom(r.Context()), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, result)
}

// ChangePlan handles PUT /api/admin/subscriptions/{id}/plan.
func (h *AdminHandler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	var req domain.UpgradeRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	result, err := h.subs.ChangePlan(r.Context(), contextkeys.PrincipalFrom(r.Context()), chi.URLParam(r, "id"), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, result)
}

// CreateOrganization handles POST /api/admin/organizations.
func (h *AdminHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOrganizationRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	org, err := h.subs.RegisterOrganization(r.Context(), contextkeys.PrincipalFrom(r.Context()), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, org)
}

// GetStats handles GET /api/admin/stats.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.subs.Stats(r.Context(), contextkeys.PrincipalFrom(r.Context()))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"subscriptions": counts})
}
