// Package metrics exposes Prometheus instrumentation for the queue service.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/phrazzld/flashcards-ai-queue/internal/events"
	"github.com/phrazzld/flashcards-ai-queue/internal/generation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aiq"

// Prom records service metrics into its own registry.
type Prom struct {
	registry     *prometheus.Registry
	submissions  *prometheus.CounterVec
	jobsStarted  prometheus.Counter
	jobsFinished *prometheus.CounterVec
	providerCall *prometheus.HistogramVec
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// NewProm creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func NewProm() *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Submitted requests by app code and admission outcome",
		}, []string{"app_code", "outcome"}),
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_attempts_total",
			Help:      "Provider attempts started by workers",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs reaching a terminal status by status and error kind",
		}, []string{"status", "error_kind"}),
		providerCall: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Completion provider call latency by provider and outcome",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 160, 300},
		}, []string{"provider", "outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.submissions,
		p.jobsStarted,
		p.jobsFinished,
		p.providerCall,
		p.requests,
		p.latency,
	)
	return p
}

// Registry returns the registry backing the /metrics handler.
func (p *Prom) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns an HTTP handler for /metrics.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// RegisterQueueGauges exports live queue depth and capacity read through the
// given functions at scrape time.
func (p *Prom) RegisterQueueGauges(depth, capacity, busyWorkers func() int) {
	p.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Request ids waiting in the queue",
		}, func() float64 { return float64(depth()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_capacity",
			Help:      "Maximum number of queued request ids",
		}, func() float64 { return float64(capacity()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_busy",
			Help:      "Workers currently handling a request",
		}, func() float64 { return float64(busyWorkers()) }),
	)
}

// ObserveSubmission counts one admission decision.
func (p *Prom) ObserveSubmission(appCode, outcome string) {
	p.submissions.WithLabelValues(appCode, outcome).Inc()
}

// ObserveProviderCall records the latency of one provider call.
func (p *Prom) ObserveProviderCall(provider string, outcome generation.OutcomeKind, elapsed time.Duration) {
	p.providerCall.WithLabelValues(provider, outcome.String()).Observe(elapsed.Seconds())
}

// ObserveRequest records one HTTP request.
func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

// HandleEvent implements events.EventHandler.
func (p *Prom) HandleEvent(_ context.Context, event *events.JobEvent) error {
	switch {
	case event.To() == domain.StatusProcessing:
		p.jobsStarted.Inc()
	case event.IsTerminal():
		kind := ""
		if event.Job.Error != nil {
			kind = string(event.Job.Error.Kind)
		}
		p.jobsFinished.WithLabelValues(string(event.To()), kind).Inc()
	}
	return nil
}
