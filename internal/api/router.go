package api

import (
	"context"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/selfgraph/internal/api/handlers"
	mw "github.com/Harshitk-cp/selfgraph/internal/api/middleware"
	"github.com/Harshitk-cp/selfgraph/internal/buildconfig"
	"github.com/Harshitk-cp/selfgraph/internal/jsonx"
	"github.com/Harshitk-cp/selfgraph/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a backing service checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the engine components the HTTP surface exposes.
type Services struct {
	Resolver    *service.ResolverService
	Belief      *service.BeliefService
	Suggestions *service.SuggestionService
	Conflicts   *service.ConflictService
	Profile     *service.ProfileService
}

type Options struct {
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustProxy lets forwarding headers replace the peer address. Leave it
	// off unless a proxy in front rewrites them.
	TrustProxy bool
	// Health maps a backing service name to its check.
	Health map[string]Pinger
}

// App holds the router and request counters for lifecycle management.
type App struct {
	Router       *chi.Mux
	RateLimiter  *mw.RateLimiter
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(svcs Services, opts Options, logger *zap.Logger) *App {
	importHandler := handlers.NewImportHandler(svcs.Resolver)
	entityHandler := handlers.NewEntityHandler(svcs.Profile, svcs.Conflicts)
	feedbackHandler := handlers.NewFeedbackHandler(svcs.Belief)
	profileHandler := handlers.NewProfileHandler(svcs.Profile)
	suggestionHandler := handlers.NewSuggestionHandler(svcs.Suggestions)

	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 100
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 20
	}

	r := chi.NewRouter()

	app := &App{
		Router:      r,
		RateLimiter: mw.NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		startTime:   time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	if opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(app.RateLimiter.Middleware)

	// Unauthenticated
	r.Get("/health", healthHandler(opts.Health))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/debug/stats", app.statsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(opts.APIKey))

		r.Post("/imports", importHandler.Create)

		r.Route("/entities", func(r chi.Router) {
			r.Get("/", entityHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", entityHandler.GetByID)
				r.Post("/feedback", feedbackHandler.Entity)
				r.Put("/spaces/{space}", entityHandler.SetMembership)
				r.Post("/conflict/resolve", entityHandler.ResolveConflict)
			})
		})

		r.Post("/cards/feedback", feedbackHandler.Card)
		r.Post("/sweep", feedbackHandler.Sweep)
		r.Get("/conflicts", entityHandler.Conflicts)

		r.Get("/facets", profileHandler.Facets)
		r.Route("/personas", func(r chi.Router) {
			r.Get("/", profileHandler.Personas)
			r.Post("/{id}/promote", profileHandler.Promote)
		})

		r.Route("/suggestions", func(r chi.Router) {
			r.Get("/", suggestionHandler.List)
			r.Post("/surface", suggestionHandler.Surface)
			r.Route("/{a}/{b}", func(r chi.Router) {
				r.Post("/accept", suggestionHandler.Accept)
				r.Post("/reject", suggestionHandler.Reject)
				r.Post("/skip", suggestionHandler.Skip)
			})
		})
	})

	return app
}

func healthHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]any{"status": "ok", "build": buildconfig.VersionInfo()}

		failures := map[string]string{}
		for name, p := range checks {
			if err := p.Ping(r.Context()); err != nil {
				failures[name] = err.Error()
			}
		}
		if len(failures) > 0 {
			status = http.StatusServiceUnavailable
			body["status"] = "error"
			body["errors"] = failures
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = jsonx.NewEncoder(w).Encode(body)
	}
}

func (app *App) statsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = jsonx.NewEncoder(w).Encode(response)
	}
}
