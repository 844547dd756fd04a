package handler

import (
	"net/http"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/contextkeys"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/service"
)

// MeHandler describes the authenticated caller.
type MeHandler struct {
	auth *service.AuthService
}

// NewMeHandler creates a new MeHandler.
func NewMeHandler(auth *service.AuthService) *MeHandler {
	return &MeHandler{auth: auth}
}

// Me handles GET /api/me.
func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	me, err := h.auth.Me(contextkeys.PrincipalFrom(r.Context()))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, me)
}
