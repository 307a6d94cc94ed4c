package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/recap/internal/config"
	"github.com/dukerupert/recap/internal/graph"
	"github.com/dukerupert/recap/internal/handler"
	"github.com/dukerupert/recap/internal/meeting"
	"github.com/dukerupert/recap/internal/metrics"
	"github.com/dukerupert/recap/internal/middleware"
	"github.com/dukerupert/recap/internal/store"
	"github.com/dukerupert/recap/internal/summary"
	"github.com/dukerupert/recap/internal/syncer"
	ws "github.com/dukerupert/recap/internal/websocket"
)

type Server struct {
	db          *sql.DB
	cfg         *config.Config
	hub         *ws.Hub
	syncH       *handler.SyncHandler
	eventsH     *handler.EventsHandler
	transcriptH *handler.TranscriptHandler
	rateLimiter *middleware.RateLimiter
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	m := metrics.New()

	eventStore := store.NewCachedEventStore(db)
	stateStore := store.NewSyncStateStore(db)
	transcriptStore := store.NewTranscriptStore(db)

	graphClient := graph.NewClient(cfg.Graph.BaseURL, cfg.Graph.Timeout, logger.With("component", "graph"))

	resolver := meeting.NewResolver(graphClient, meeting.ResolverConfig{
		SearchWindow: cfg.Picker.MeetingSearchWindow,
		CacheTTL:     cfg.Graph.ResolveCacheTTL,
	}, logger.With("component", "resolver"))

	annotator := meeting.NewAnnotator(resolver, meeting.AnnotatorConfig{
		Enabled:     cfg.Sync.TranscriptCheck,
		CheckLimit:  cfg.Sync.CheckLimit,
		Concurrency: cfg.Sync.Concurrency,
		Picker: meeting.PickerConfig{
			WindowBefore: cfg.Picker.WindowBefore,
			WindowAfter:  cfg.Picker.WindowAfter,
		},
	}, logger.With("component", "annotator"))

	syncSvc := syncer.NewService(graphClient, annotator, eventStore, stateStore, syncer.PlanConfig{
		Recency:          time.Duration(cfg.Sync.RecencyDays) * 24 * time.Hour,
		Backfill:         time.Duration(cfg.Sync.BackfillDays) * 24 * time.Hour,
		BackfillInterval: cfg.Sync.BackfillInterval,
		EdgeOverlap:      cfg.Sync.EdgeOverlap,
	}, m, logger)

	generator := summary.NewClient(cfg.Summarizer.BaseURL, cfg.Summarizer.APIKey,
		cfg.Summarizer.Model, cfg.Summarizer.Timeout, logger)
	summarySvc := summary.NewService(transcriptStore, graphClient, generator, summary.Config{
		Model:          cfg.Summarizer.Model,
		StaleLockAfter: cfg.Summarizer.StaleLockAfter,
	}, m, logger)

	return &Server{
		db:          db,
		cfg:         cfg,
		hub:         hub,
		syncH:       handler.NewSyncHandler(syncSvc, hub, logger.With("component", "sync_handler")),
		eventsH:     handler.NewEventsHandler(syncSvc, eventStore, logger.With("component", "events_handler")),
		transcriptH: handler.NewTranscriptHandler(summarySvc, transcriptStore, hub, logger.With("component", "transcript_handler")),
		rateLimiter: middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute, time.Minute),
		metrics:     m,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", s.metrics.Handler())

	// Protected routes — wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.cfg.Server.JWTSecret)
	outerMux.Handle("/", authMiddleware(protectedMux))

	// Apply request logging middleware
	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Platform-touching endpoints are rate-limited per user; each sync
	// pass can fan out dozens of directory queries.
	limited := func(h http.HandlerFunc) http.Handler {
		return s.rateLimiter.Limit(h)
	}

	// Sync API routes
	mux.Handle("POST /api/sync", limited(s.syncH.Trigger))

	// Cached event API routes
	mux.HandleFunc("GET /api/events", s.eventsH.List)
	mux.HandleFunc("GET /api/events/{id}", s.eventsH.Get)

	// Transcript API routes
	mux.Handle("POST /api/transcripts/summary", limited(s.transcriptH.EnsureSummary))
	mux.HandleFunc("GET /api/transcripts/{id}", s.transcriptH.Get)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}
