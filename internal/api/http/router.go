package httpapi

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformhealth "github.com/shestoi/bookstore-orders/platform/health/http"
	platformobservability "github.com/shestoi/bookstore-orders/platform/observability"
)

// NewRouter создаёт и настраивает HTTP роутер.
// checks - проверки готовности зависимостей для /health (503, если хотя бы одна не прошла).
// logger используется для observability HTTP middleware (trace_id в логах).
func NewRouter(handler *Handler, logger *zap.Logger, checks ...platformhealth.Check) chi.Router {
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)

	// Observability: trace context + span на каждый запрос, logger с trace_id в контексте
	if logger != nil {
		router.Use(platformobservability.HTTPMiddleware("orders", logger))
	}

	router.Route("/orders", func(r chi.Router) {
		r.Post("/{id}/complete", handler.PostOrderComplete)
	})

	router.Get("/health", platformhealth.Handler(checks...))

	return router
}
