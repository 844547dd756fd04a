package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	deps map[string]Pinger
}

// NewHealthHandler creates a new HealthHandler probing each named dependency.
func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := map[string]interface{}{
		"status": "ok",
	}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			status[name] = "error"
			status["status"] = "degraded"
		} else {
			status[name] = "ok"
		}
	}

	code := http.StatusOK
	if status["status"] == "degraded" {
		code = http.StatusServiceUnavailable
	}

	JSON(w, code, status)
}
