package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frahmantamala/order-management/internal/auth"
	"github.com/frahmantamala/order-management/internal/order"
	"github.com/frahmantamala/order-management/internal/transport/middleware"
	"github.com/frahmantamala/order-management/internal/transport/swagger"
)

func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	authHandler *auth.Handler,
	orderHandler *order.Handler,
	webhookHandler *order.WebhookHandler,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.MetricsMiddleware)

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())
	router.Handle("/metrics", promhttp.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Gateway notifications authenticate by signature, not bearer token
		if webhookHandler != nil {
			r.Post("/webhook/payment-gateway", webhookHandler.HandleNotification)
		}

		if authHandler != nil && orderHandler != nil {
			r.Group(func(pr chi.Router) {
				pr.Use(authHandler.AuthMiddleware)

				pr.Route("/orders", func(or chi.Router) {
					or.Post("/", orderHandler.CreateOrder)
					or.Get("/", orderHandler.ListOrders)
					or.Post("/verify-payment", orderHandler.VerifyPayment)
					or.Get("/payment-status", orderHandler.PaymentStatus)
					or.Get("/{id}", orderHandler.GetOrder)
					or.Post("/{id}/cancel", orderHandler.CancelOrder)

					// Operator routes
					or.Group(func(mr chi.Router) {
						mr.Use(authHandler.RequirePermission(order.PermManageOrders))
						mr.Put("/{id}/status", orderHandler.UpdateStatus)
					})
				})
			})
		}
	})
}
