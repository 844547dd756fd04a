package handler

import (
	"net/http"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/contextkeys"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/service"
	"github.com/go-chi/chi/v5"
)

// SubscriptionHandler serves the dashboard's subscription endpoints.
type SubscriptionHandler struct {
	subs     *service.SubscriptionService
	checkout *service.CheckoutService
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subs *service.SubscriptionService, checkout *service.CheckoutService) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs, checkout: checkout}
}

// List handles GET /api/subscriptions.
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subs.List(r.Context(), contextkeys.PrincipalFrom(r.Context()))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, subs)
}

// Get handles GET /api/subscriptions/{id}.
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subs.Get(r.Context(), contextkeys.PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, sub)
}

// History handles GET /api/subscriptions/{id}/history.
func (h *SubscriptionHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.subs.History(r.Context(), contextkeys.PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, entries)
}

// Checkout handles POST /api/subscriptions/checkout.
func (h *SubscriptionHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	resp, err := h.checkout.StartCheckout(r.Context(), contextkeys.PrincipalFrom(r.Context()), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}

// Upgrade handles POST /api/subscriptions/{id}/upgrade.
func (h *SubscriptionHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	var req domain.UpgradeRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	resp, err := h.checkout.StartUpgrade(r.Context(), contextkeys.PrincipalFrom(r.Context()), chi.URLParam(r, "id"), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}

// Confirm handles POST /api/payment/confirm.
func (h *SubscriptionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentConfirmation
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	result, err := h.checkout.Confirm(r.Context(), contextkeys.PrincipalFrom(r.Context()), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, result)
}

// Cancel handles POST /api/subscriptions/{id}/cancel.
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	result, err := h.subs.Cancel(r.Context(), contextkeys.PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, result)
}

// Resume handles POST /api/subscriptions/{id}/resume.
func (h *SubscriptionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	result, err := h.subs.Resume(r.Context(), contextkeys.PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, result)
}

// RotateKey handles POST /api/subscriptions/{id}/api-key.
func (h *SubscriptionHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	result, err := h.subs.RotateKey(r.Context(), contextkeys.PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, result)
}
