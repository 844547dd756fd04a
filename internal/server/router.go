// Package server assembles the HTTP surface from handlers and middleware.
package server

import (
	"net/http"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/handler"
	appMiddleware "github.com/Jeevanvsan/byee-ugraph-saas/internal/middleware"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the router needs.
type Deps struct {
	Auth         *service.AuthService
	Subscription *service.SubscriptionService
	Checkout     *service.CheckoutService
	Validation   *service.ValidationService
	Health       map[string]handler.Pinger
	CORSOrigins  []string

	// GlobalLimiter and ValidateLimiter may be nil to disable limiting.
	GlobalLimiter   *appMiddleware.RateLimiter
	ValidateLimiter *appMiddleware.RateLimiter
}

// NewRouter builds the chi router with every route.
func NewRouter(d Deps) http.Handler {
	subHandler := handler.NewSubscriptionHandler(d.Subscription, d.Checkout)
	adminHandler := handler.NewAdminHandler(d.Subscription)
	validationHandler := handler.NewValidationHandler(d.Validation)
	healthHandler := handler.NewHealthHandler(d.Health)
	plansHandler := handler.NewPlansHandler()
	meHandler := handler.NewMeHandler(d.Auth)

	r := chi.NewRouter()

	// Global middleware
	r.Use(appMiddleware.Recovery)
	r.Use(appMiddleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if d.GlobalLimiter != nil {
		r.Use(d.GlobalLimiter.Middleware())
	}

	// Public routes
	r.Get("/health", healthHandler.Check)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/plans", plansHandler.List)
	r.Group(func(r chi.Router) {
		if d.ValidateLimiter != nil {
			r.Use(d.ValidateLimiter.Middleware())
		}
		r.Post("/api/v1/validate", validationHandler.Validate)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.Auth(d.Auth))

		r.Get("/api/me", meHandler.Me)

		r.Get("/api/subscriptions", subHandler.List)
		r.Post("/api/subscriptions/checkout", subHandler.Checkout)
		r.Get("/api/subscriptions/{id}", subHandler.Get)
		r.Get("/api/subscriptions/{id}/history", subHandler.History)
		r.Post("/api/subscriptions/{id}/upgrade", subHandler.Upgrade)
		r.Post("/api/subscriptions/{id}/cancel", subHandler.Cancel)
		r.Post("/api/subscriptions/{id}/resume", subHandler.Resume)
		r.Post("/api/subscriptions/{id}/api-key", subHandler.RotateKey)
		r.Post("/api/payment/confirm", subHandler.Confirm)

		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.AdminOnly)
			r.Post("/api/admin/subscriptions", adminHandler.Grant)
			r.Put("/api/admin/subscriptions/{id}/plan", adminHandler.ChangePlan)
			r.Post("/api/admin/organizations", adminHandler.CreateOrganization)
			r.Get("/api/admin/stats", adminHandler.GetStats)
		})
	})

	return r
}
