package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metricbridge/core/internal/config"
	"github.com/metricbridge/core/pkg/database"
	"github.com/metricbridge/core/pkg/database/pool"
	"github.com/metricbridge/core/pkg/handlers/health"
	"github.com/metricbridge/core/pkg/handlers/jobs"
	"github.com/metricbridge/core/pkg/logger"
	"github.com/metricbridge/core/pkg/middleware"
	"github.com/metricbridge/core/pkg/scheduler"
	"github.com/metricbridge/core/pkg/services"
	"github.com/metricbridge/core/pkg/validation"
)

// Server represents the API server
type Server struct {
	router   *http.ServeMux
	port     string
	logger   *logger.Logger
	dbPool   *pgxpool.Pool
	store    database.JobStore
	handlers struct {
		health *health.Handler
		jobs   *jobs.Handler
	}
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	server := &Server{
		router: http.NewServeMux(),
		port:   cfg.Server.Port,
		logger: log,
	}

	if cfg.Scheduler.Store == "memory" {
		server.store = database.NewMemoryStore()
	} else {
		dbPool, err := pool.New(context.Background(), cfg.DatabaseURL(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := testDatabaseConnection(dbPool, log); err != nil {
			dbPool.Close()
			return nil, err
		}
		server.dbPool = dbPool
		server.store = database.NewPostgresStore(dbPool)

		log.Info().
			Str("action", "db_connected").
			Msg("Database connection pool established")
	}

	sourceClient := services.NewSourceClient(cfg)
	destClient := services.NewDestinationClient(cfg)
	profiles := services.NewProfileService(sourceClient, destClient)
	validator := validation.New(server.store, profiles)

	// The API process mutates persisted state only; the scheduler process
	// reconciles its timer set from the store.
	dispatcher := scheduler.NewStoreDispatcher(server.store)

	server.handlers.health = health.NewHandler(log)
	server.handlers.jobs = jobs.NewHandler(server.store, validator, dispatcher, log)

	server.setupRoutes()

	return server, nil
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.CORS(middleware.RequestID(s.logger, h))
	}

	s.router.HandleFunc("/health", wrap(s.handlers.health.HealthCheck))

	s.router.HandleFunc("/api/jobs", wrap(s.handlers.jobs.Collection))
	s.router.HandleFunc("/api/jobs/count", wrap(s.handlers.jobs.Count))
	s.router.HandleFunc("/api/jobs/", wrap(s.handlers.jobs.Item)) // handles /api/jobs/{id} and /api/jobs/{id}/cancel
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().
		Str("action", "server_start").
		Str("port", s.port).
		Msg("Starting API server")

	if err := http.ListenAndServe(":"+s.port, s.router); err != nil {
		return fmt.Errorf("server failed to start on port %s: %w", s.port, err)
	}

	return nil
}

// Close gracefully shuts down the server and closes database connections
func (s *Server) Close() {
	if s.dbPool != nil {
		s.dbPool.Close()
		s.logger.Info().Msg("Database connection pool closed")
	}
}

// testDatabaseConnection tests the database connection with retry logic
func testDatabaseConnection(dbPool *pgxpool.Pool, log *logger.Logger) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := dbPool.Ping(ctx)
		cancel()

		if err == nil {
			return nil
		}

		if i == maxRetries-1 {
			return fmt.Errorf("failed to ping database after %d retries: %w", maxRetries, err)
		}

		log.Warn().
			Err(err).
			Int("attempt", i+1).
			Str("action", "db_ping_retry").
			Msg("Retrying database connection")
		time.Sleep(2 * time.Second)
	}

	return nil
}
