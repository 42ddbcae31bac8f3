package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/payment-reconciliation/internal/auth"
	"github.com/frahmantamala/payment-reconciliation/internal/gateway"
	"github.com/frahmantamala/payment-reconciliation/internal/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/transport/middleware"
	"github.com/frahmantamala/payment-reconciliation/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

type Handlers struct {
	Health  *HealthHandler
	Auth    *auth.Handler
	Payment *payment.Handler
	Webhook *payment.WebhookHandler
	Gateway *gateway.Handler
}

type RouterOptions struct {
	AllowedOrigins string
	// OpenAPIPath is served at /openapi.yml when set.
	OpenAPIPath string
	// Validator checks authenticated payment requests against the API document.
	Validator func(http.Handler) http.Handler
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, opts RouterOptions, logger *slog.Logger) {
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.ClientInfo)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	if opts.OpenAPIPath != "" {
		router.Get(swagger.DocPath, swagger.DocHandler(opts.OpenAPIPath))
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.healthCheckHandler)
			r.Get("/ping", h.Health.pingHandler)
		}

		if h.Gateway != nil {
			r.Get("/gateways", h.Gateway.GetGateways)
		}

		// providers authenticate with signatures, not bearer tokens
		if h.Webhook != nil {
			r.Post("/webhooks/{gateway}", h.Webhook.HandleWebhook)
		}

		if h.Auth == nil || h.Payment == nil {
			return
		}

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)
			if opts.Validator != nil {
				pr.Use(opts.Validator)
			}

			pr.Route("/payments", func(pmr chi.Router) {
				pmr.Post("/initiate", h.Payment.InitiatePayment)
				pmr.Get("/stats", h.Payment.GetStats)
				pmr.Post("/status", h.Payment.CheckPaymentStatus)
				pmr.Get("/{merchantTransactionId}/status", h.Payment.GetPaymentStatus)
				pmr.Post("/{merchantTransactionId}/retry", h.Payment.RetryPayment)
				pmr.Post("/{merchantTransactionId}/refund", h.Payment.RefundPayment)
			})
		})
	})
}
