// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects the directory, the chat
// fanout, the services, handlers and middleware, and decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server and its background workers start and stop
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  sqlite.DB (geocode cache) → geocode.Cached(geocode.Google) → directory.Directory
//	  chat.Registry + events.Publisher → service.ChatService → handler.ChatHandler
//	  directory.Directory → service.GroupService → handler.GroupHandler
//	  geocode.Google → service.PlaceService → handler.PlaceHandler
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes) rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/companion/internal/chat"
	"github.com/sakif/companion/internal/config"
	"github.com/sakif/companion/internal/directory"
	"github.com/sakif/companion/internal/events"
	"github.com/sakif/companion/internal/geocode"
	"github.com/sakif/companion/internal/handler"
	"github.com/sakif/companion/internal/metrics"
	"github.com/sakif/companion/internal/middleware"
	sqliteRepo "github.com/sakif/companion/internal/repository/sqlite"
	"github.com/sakif/companion/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the geocode cache database, the event publisher and the
// expiry sweeper. All three are released in Start during graceful shutdown,
// or by Close when Start is never called.
type Server struct {
	router   *chi.Mux
	config   config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	db        *sqliteRepo.DB // nil when the geocode cache is disabled
	dir       *directory.Directory
	sweeper   *directory.Sweeper
	fanout    *chat.Registry
	publisher events.Publisher
	finder    geocode.PlaceFinder // nil without GOOGLE_API_KEY
}

// New builds every component from cfg. Nothing runs until Start.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		registry: reg,
		metrics:  metrics.New(reg),
	}

	resolver, err := s.setupGeocoding()
	if err != nil {
		return nil, err
	}

	s.dir = directory.New(logger,
		directory.WithConfig(directory.Config{
			LockTimeout:    cfg.LockTimeout,
			GeocodeTimeout: cfg.GeocodeTimeout,
		}),
		directory.WithMetrics(s.metrics),
		directory.WithResolver(resolver),
	)
	s.sweeper = directory.NewSweeper(s.dir, cfg.SweepInterval, logger)
	s.fanout = chat.NewRegistry(logger, s.metrics)

	if len(cfg.KafkaBrokers) > 0 {
		s.publisher = events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	} else {
		logger.Info("chat events disabled: KAFKA_BROKERS not set")
		s.publisher = events.Nop{}
	}

	s.setupRoutes()
	return s, nil
}

// setupGeocoding builds the place-id resolver: Google Places, behind the
// SQLite cache when GEOCODE_CACHE_PATH is set. It returns a nil Resolver
// without an API key, which makes the directory use fallback coordinates.
func (s *Server) setupGeocoding() (directory.Resolver, error) {
	if s.config.GoogleAPIKey == "" {
		s.logger.Warn("GOOGLE_API_KEY not set: new locations get fallback coordinates and /map/nearby is unavailable")
		return nil, nil
	}

	google, err := geocode.NewGoogle(s.config.GoogleAPIKey, s.logger)
	if err != nil {
		return nil, fmt.Errorf("creating geocoder: %w", err)
	}
	s.finder = google

	path := s.config.GeocodeCachePath
	if path == "" {
		return google, nil
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating geocode cache directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening geocode cache: %w", err)
	}
	s.db = db
	return geocode.NewCached(google, db, s.logger), nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// POST   /groups/create                          → create a group
// POST   /groups/join                            → join a group
// GET    /groups/nearby                          → groups around a point
// GET    /locations                              → several locations (?id=a&id=b)
// GET    /locations/{locationID}/groups          → one location's groups
// DELETE /locations/{locationID}/groups/{groupID} → delete a group
// POST   /chat/send                              → write to a group chat
// GET    /chat/history                           → read a group chat
// GET    /map/nearby                             → mood place search (GeoJSON)
// GET    /ws                                     → live chat websocket
// GET    /healthz, /metrics                      → ops
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID, so every log line below can carry it
// 2. RealIP, before anything logs the remote address
// 3. Logger, which also records request metrics
// 4. Recoverer, inside Logger so a panic is logged as the 500 it becomes
// 5. CORS, answering preflights from allowed origins before routing
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger, s.metrics))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         300,
	}))

	groupService := service.NewGroupService(s.dir, s.config.NearbyRadiusKm, s.logger)
	chatService := service.NewChatService(s.dir, s.fanout, s.publisher, s.logger)
	placeService := service.NewPlaceService(s.finder, s.logger)

	groupHandler := handler.NewGroupHandler(groupService, s.logger)
	chatHandler := handler.NewChatHandler(chatService, s.logger)
	placeHandler := handler.NewPlaceHandler(placeService, s.logger)
	wsHandler := handler.NewWSHandler(s.fanout, s.dir, s.config.AllowedOrigins, s.logger)

	s.router.Get("/healthz", handler.HandleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	s.router.Route("/groups", func(r chi.Router) {
		r.Post("/create", groupHandler.HandleCreate)
		r.Post("/join", groupHandler.HandleJoin)
		r.Get("/nearby", groupHandler.HandleNearby)
	})

	s.router.Route("/locations", func(r chi.Router) {
		r.Get("/", groupHandler.HandleLocations)
		r.Get("/{locationID}/groups", groupHandler.HandleLocationGroups)
		r.Delete("/{locationID}/groups/{groupID}", groupHandler.HandleDelete)
	})

	s.router.Route("/chat", func(r chi.Router) {
		r.Post("/send", chatHandler.HandleSend)
		r.Get("/history", chatHandler.HandleHistory)
	})

	s.router.Get("/map/nearby", placeHandler.HandleNearby)
	s.router.Get("/ws", wsHandler.HandleConnect)
}

// Handler returns the fully wrapped HTTP handler: the router behind
// OpenTelemetry instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, s.config.ServiceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Start starts the HTTP server and the sweeper, and blocks until SIGINT or
// SIGTERM.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections and wait for in-flight requests
// 2. Cancel the base context, which ends websocket clients (Shutdown does
//    not track hijacked connections)
// 3. Stop the sweeper, flush the event publisher, close the database
func (s *Server) Start() error {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	defer s.Close()

	s.sweeper.Start(baseCtx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.Duration("sweep_interval", s.config.SweepInterval),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		cancelBase()
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close stops the sweeper and releases the publisher and the database.
// Start calls it on return; call it directly only when Start never runs.
func (s *Server) Close() error {
	s.sweeper.Stop()

	var errs []error
	if err := s.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing event publisher: %w", err))
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing geocode cache: %w", err))
		}
		s.db = nil
	}
	return errors.Join(errs...)
}
