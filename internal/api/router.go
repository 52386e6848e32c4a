package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/vnmchuo/costs-service/internal/auth"
	"github.com/vnmchuo/costs-service/internal/metrics"
	"go.uber.org/zap"
)

// NewRouter mounts the costs API. Reads are public; writes go through
// requireKey. m may be nil, in which case /metrics is not served.
func NewRouter(h *Handler, requireKey auth.Middleware, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(auth.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(chimiddleware.Recoverer)
	if m != nil {
		r.Use(m.Middleware)
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Get("/health", h.HandleHealth)

	r.Route("/v1/prices", func(r chi.Router) {
		r.Get("/", h.HandleListPrices)
		r.Get("/{name}", h.HandleGetPrice)
	})

	r.Route("/v1/providers-costs", func(r chi.Router) {
		r.Get("/", h.HandleListProviderCosts)
		r.Get("/{name}", h.HandleGetProviderCost)
		r.Get("/{name}/history", h.HandleProviderCostHistory)
		r.Get("/{name}/plans", h.HandleProviderCostPlans)

		r.Group(func(r chi.Router) {
			r.Use(requireKey)
			r.Put("/{name}", h.HandlePutProviderCost)
			r.Delete("/{name}", h.HandleDeleteProviderCost)
		})
	})

	r.Route("/v1/platform-plans", func(r chi.Router) {
		r.Get("/", h.HandleListPlatformPlans)
		r.Get("/{provider}", h.HandleGetPlatformPlan)
		r.Get("/{provider}/history", h.HandlePlatformPlanHistory)

		r.Group(func(r chi.Router) {
			r.Use(requireKey)
			r.Put("/{provider}", h.HandlePutPlatformPlan)
		})
	})

	r.NotFound(h.HandleNotFound)
	r.MethodNotAllowed(h.HandleNotFound)
	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request",
				zap.String("request_id", auth.GetRequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
