package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	apimiddleware "github.com/phrazzld/flashcards-ai-queue/internal/api/middleware"
	"github.com/rs/cors"
)

// RouterConfig holds everything NewRouter wires together.
type RouterConfig struct {
	Gateway Gateway
	Hub     *StatusHub
	Logger  *slog.Logger
	Version string

	// CORSOrigins lists allowed browser origins; "*" allows all
	CORSOrigins []string

	// Metrics, when set, observes every request and serves /metrics
	Metrics interface {
		apimiddleware.RequestObserver
		Handler() http.Handler
	}
}

// NewRouter creates the application router with all routes and middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.NewTraceMiddleware(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(apimiddleware.NewMetricsMiddleware(cfg.Metrics))
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Retry-After", apimiddleware.TraceHeader},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}).Handler)

	requests := NewRequestHandler(cfg.Gateway)
	system := NewSystemHandler(cfg.Gateway, cfg.Version)

	r.Get("/", system.Index)
	r.Get("/health", system.Health)
	r.Get("/apps", system.Apps)
	r.Post("/ai_request", requests.SubmitRequest)
	r.Get("/get_request/{request_id}", requests.GetRequest)

	if cfg.Hub != nil {
		stream := NewStreamHandler(cfg.Gateway, cfg.Hub, cfg.CORSOrigins)
		r.Get("/ws/requests/{request_id}", stream.Stream)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	return r
}
