package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/calder-labs/sigil/internal/api/handlers"
	mw "github.com/calder-labs/sigil/internal/api/middleware"
	"github.com/calder-labs/sigil/internal/config"
	"github.com/calder-labs/sigil/internal/domain"
	"github.com/calder-labs/sigil/internal/embedding"
	"github.com/calder-labs/sigil/internal/rules"
	"github.com/calder-labs/sigil/internal/service"
	"github.com/calder-labs/sigil/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router *chi.Mux
	Review *service.ReviewService

	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	eventStore := store.NewEventStore(db)
	weightStore := store.NewWeightStore(db)
	correctionStore := store.NewCorrectionStore(db)
	entityStore := store.NewEntityStore(db)

	// Embedding client via provider factory
	var embeddingClient domain.EmbeddingClient
	embeddingClient, err := embedding.NewClient(config.EmbeddingProvider(), config.EmbeddingAPIKey())
	if err != nil {
		logger.Warn("embedding client initialization failed",
			zap.String("provider", config.EmbeddingProvider()), zap.Error(err))
		embeddingClient = nil
	} else {
		logger.Info("embedding client initialized", zap.String("provider", config.EmbeddingProvider()))
	}

	// Services
	learner := service.NewCorrectionLearner(weightStore, correctionStore, logger)

	engine := service.NewPropagationEngine(logger)
	engine.SetMaxDepth(config.MaxPropagationDepth())
	rules.RegisterDefaults(engine)

	signalSvc := service.NewSignalService(eventStore, engine, learner, logger)

	resolver := service.NewResolver(eventStore, learner, logger)
	resolver.AutoLinkThreshold = config.AutoLinkThreshold()
	resolver.ReviewThreshold = config.ReviewThreshold()

	scorer := service.NewRelevanceScorer()

	reviewSvc := service.NewReviewService(eventStore, resolver, logger)
	reviewSvc.SetInterval(config.ReviewSweepInterval())

	// Handlers
	signalHandler := handlers.NewSignalHandler(signalSvc, embeddingClient, logger)
	resolveHandler := handlers.NewResolveHandler(resolver)
	correctionHandler := handlers.NewCorrectionHandler(learner, correctionStore)
	weightHandler := handlers.NewWeightHandler(learner)
	relevanceHandler := handlers.NewRelevanceHandler(signalSvc, scorer, embeddingClient)
	entityHandler := handlers.NewEntityHandler(entityStore, embeddingClient, logger)
	reviewHandler := handlers.NewReviewHandler(reviewSvc)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Review:    reviewSvc,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health (no auth)
	r.Get("/health", healthHandler(db))

	// Metrics (no auth)
	r.Get("/metrics", app.metricsHandler())

	// Authenticated routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(config.APIKey()))

		// Signal ingestion and reads
		r.Route("/signals", func(r chi.Router) {
			r.Post("/", signalHandler.Create)
			r.Get("/", signalHandler.List)
			r.Get("/{id}", signalHandler.Get)
		})

		// Fused confidence read path
		r.Get("/confidence", signalHandler.Confidence)

		// Resolution cascade
		r.Post("/resolve", resolveHandler.Resolve)
		r.Post("/review/sweep", reviewHandler.TriggerSweep)

		// Corrections and learned weights
		r.Route("/corrections", func(r chi.Router) {
			r.Post("/", correctionHandler.Create)
			r.Get("/", correctionHandler.List)
		})
		r.Get("/weights", weightHandler.List)

		// Relevance ranking
		r.Post("/relevance/rank", relevanceHandler.Rank)

		// Entity registry
		r.Route("/entities", func(r chi.Router) {
			r.Post("/", entityHandler.Create)
			r.Get("/", entityHandler.Search)
			r.Get("/{id}", entityHandler.GetByID)
		})
	})

	return app
}

// NewRouter returns just the chi.Mux for callers that manage lifecycles
// themselves.
func NewRouter(db *pgxpool.Pool, logger *zap.Logger) *chi.Mux {
	return NewApp(db, logger).Router
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
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
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.EventStore      = (*store.EventStore)(nil)
	_ domain.WeightStore     = (*store.WeightStore)(nil)
	_ domain.CorrectionStore = (*store.CorrectionStore)(nil)
	_ domain.EntityStore     = (*store.EntityStore)(nil)
	_ domain.EmbeddingClient = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient = (*embedding.MockClient)(nil)
	_ service.WeightProvider = (*service.CorrectionLearner)(nil)
)
