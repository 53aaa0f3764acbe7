package rest

import (
	"database/sql"
	"log/slog"

	"github.com/Kirachon/dsr-payment-service/internal/audit"
	"github.com/Kirachon/dsr-payment-service/internal/batch"
	"github.com/Kirachon/dsr-payment-service/internal/payment"
	"github.com/Kirachon/dsr-payment-service/internal/provider"
	"github.com/Kirachon/dsr-payment-service/internal/transport/middleware"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, paymentHandler *payment.Handler, batchHandler *batch.Handler, providerHandler *provider.Handler, auditHandler *audit.Handler, logger *slog.Logger) {
	var healthSource ProviderHealthSource
	if providerHandler != nil {
		healthSource = providerHandler.Registry
	}
	healthHandler := NewHealthHandler(db, healthSource)

	// Apply global middleware
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.Actor)

	// Mount API under /api/v1
	router.Route("/api/v1", func(r chi.Router) {
		// Health check route
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if paymentHandler != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Post("/", paymentHandler.CreatePayment)       // POST /payments
				pr.Get("/", paymentHandler.SearchPayments)       // GET /payments
				pr.Get("/statistics", paymentHandler.Statistics) // GET /payments/statistics
				pr.Get("/reference/{reference}", paymentHandler.GetPaymentByReference)
				pr.Get("/{id}", paymentHandler.GetPayment) // GET /payments/:id
				pr.Get("/{id}/status", paymentHandler.CheckPaymentStatus)
				pr.Post("/{id}/process", paymentHandler.ProcessPayment)
				pr.Post("/{id}/retry", paymentHandler.RetryPayment)
				pr.Post("/{id}/cancel", paymentHandler.CancelPayment)
				pr.Post("/{id}/check-status", paymentHandler.CheckPaymentStatus)
				if auditHandler != nil {
					pr.Get("/{id}/audit", auditHandler.PaymentTrail)
				}
			})
		}

		if batchHandler != nil {
			r.Route("/batches", func(br chi.Router) {
				br.Post("/", batchHandler.CreateBatch) // POST /batches
				br.Get("/", batchHandler.SearchBatches)
				br.Get("/number/{batchNumber}", batchHandler.GetBatchByNumber)
				br.Get("/{id}", batchHandler.GetBatch)
				br.Get("/{id}/progress", batchHandler.Progress)
				br.Post("/{id}/start", batchHandler.StartBatch)
				br.Post("/{id}/pause", batchHandler.PauseBatch)
				br.Post("/{id}/resume", batchHandler.ResumeBatch)
				br.Post("/{id}/cancel", batchHandler.CancelBatch)
				if auditHandler != nil {
					br.Get("/{id}/audit", auditHandler.BatchTrail)
				}
			})
		}

		if providerHandler != nil {
			r.Route("/providers", func(fr chi.Router) {
				fr.Get("/", providerHandler.ListProviders)
				fr.Get("/health", providerHandler.Health)
			})
		}

		if auditHandler != nil {
			r.Get("/audit/correlation/{correlationID}", auditHandler.CorrelationTrail)
		}
	})
}
