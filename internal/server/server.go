package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/lotwise/lotwise/internal/config"
	"github.com/lotwise/lotwise/internal/di"
	"github.com/lotwise/lotwise/internal/modules/auth"
	billinghandlers "github.com/lotwise/lotwise/internal/modules/billing/handlers"
	comparehandlers "github.com/lotwise/lotwise/internal/modules/compare/handlers"
	creditshandlers "github.com/lotwise/lotwise/internal/modules/credits/handlers"
	historyhandlers "github.com/lotwise/lotwise/internal/modules/history/handlers"
)

// Config holds server configuration.
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container // DI container with all services
	Port      int
	DevMode   bool
}

// Server represents the HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	systemHandlers := NewSystemHandlers(cfg.Config.DataDir, cfg.Container.Databases(), cfg.Log)

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Config,
		container:      cfg.Container,
		systemHandlers: systemHandlers,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check stays outside the auth gate for load balancers
	s.router.Get("/health", s.handleHealth)

	authMiddleware := auth.NewMiddleware(s.container.AuthRepo, s.log)

	compareHandler := comparehandlers.NewHandler(s.container.CompareService, s.container.RateLimiter, s.log)
	historyHandler := historyhandlers.NewHandler(s.container.HistoryRepo, s.log)
	creditsHandler := creditshandlers.NewHandler(s.container.CreditService, s.log)
	billingHandler := billinghandlers.NewHandler(
		s.container.BillingService,
		s.cfg.StripeWebhookSecret,
		s.cfg.FreeCredits,
		s.log,
	)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		// Stripe authenticates webhook deliveries by signature, not by
		// user credentials, so the intake sits outside the auth gate.
		billingHandler.RegisterWebhookRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			compareHandler.RegisterRoutes(r)
			historyHandler.RegisterRoutes(r)
			creditsHandler.RegisterRoutes(r)
			billingHandler.RegisterRoutes(r)

			// System monitoring and operations
			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.systemHandlers.HandleSystemStatus)
				r.Get("/databases", s.systemHandlers.HandleDatabaseStats)
				r.Get("/disk", s.systemHandlers.HandleDiskUsage)
			})
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
