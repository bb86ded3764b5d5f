package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hookpace/hookpace/internal/api/handler"
	apimw "github.com/hookpace/hookpace/internal/api/middleware"
	"github.com/hookpace/hookpace/internal/queue"
	"github.com/hookpace/hookpace/internal/registry"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	mgr *queue.Manager,
	reg registry.Registry,
	promReg prometheus.Gatherer,
	enqueueLimiter *rate.Limiter,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	eh := handler.NewEnqueueHandler(mgr, reg, logger)
	dh := handler.NewDestinationHandler(reg, mgr, logger)
	qh := handler.NewQueueHandler(mgr)

	// --- routes ---
	r.Get("/health", handler.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.With(apimw.Throttle(enqueueLimiter)).Post("/enqueue", eh.Enqueue)

		r.Put("/destinations", dh.Configure)
		r.Post("/destinations", dh.Create)
		r.Get("/destinations", dh.List)
		r.Get("/destinations/{id}", dh.GetByID)
		r.Delete("/destinations/{id}", dh.Delete)

		r.Get("/queues", qh.GetQueues)
	})

	return r
}
