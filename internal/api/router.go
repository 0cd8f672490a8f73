package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/step-engine/internal/api/handler"
	apimw "github.com/notifyhub/step-engine/internal/api/middleware"
	"github.com/notifyhub/step-engine/internal/queue"
	"github.com/notifyhub/step-engine/internal/service"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Jobs      *service.JobService
	Queue     *queue.PriorityQueue
	DB        handler.Pinger
	Gatherer  prometheus.Gatherer
	StepTypes []string
	Workers   int
	Logger    *zap.Logger
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestSize(1 << 20))
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(d.Logger))

	jh := handler.NewJobHandler(d.Jobs, d.Logger)
	ch := handler.NewCacheHandler(d.Jobs, d.Logger)
	mh := handler.NewMetricsHandler(d.Queue, d.StepTypes, d.Workers)
	hh := handler.NewHealthHandler(d.DB)

	r.Get("/health", hh.Health)
	r.Get("/ready", hh.Ready)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Get("/", jh.GetByID)
			r.Get("/execution-details", jh.ExecutionDetails)
			r.Post("/dispatch", jh.Dispatch)
		})

		r.Route("/environments/{environmentId}", func(r chi.Router) {
			r.Delete("/subscribers/{subscriberId}/cache", ch.InvalidateSubscriber)
			r.Delete("/templates/{templateId}/cache", ch.InvalidateTemplate)
		})

		r.Get("/metrics", mh.GetMetrics)
	})

	return r
}
