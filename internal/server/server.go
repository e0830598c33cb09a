package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"silk-catalog/internal/config"
	"silk-catalog/internal/database"
	custommiddleware "silk-catalog/internal/middleware"
	"silk-catalog/internal/transport"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	deps   *Dependencies
}

func NewServer(cfg *config.Config, logger *zap.Logger, deps *Dependencies) *Server {
	s := &Server{
		config: cfg,
		logger: logger,
		deps:   deps,
	}

	s.Server = &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           s.routes(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads of phone video can take a while on slow links.
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
	}

	return s
}

func (s *Server) routes() http.Handler {
	router := chi.NewRouter()

	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.ErrorHandlingMiddleware(s.logger))
	router.Use(custommiddleware.LoggingMiddleware(s.logger))
	router.Use(custommiddleware.CORSMiddleware(s.config.Server.AllowedOrigins))

	router.Get("/health", s.health)

	catalogHandler := transport.NewCatalogHandler(s.deps.Catalog, s.logger)
	router.Group(func(r chi.Router) {
		r.Use(custommiddleware.MaxBodySize(s.config.Server.MaxUploadBytes))
		if limiter := s.rateLimiter(); limiter != nil {
			r.Use(limiter)
		}
		catalogHandler.RegisterRoutes(r)
	})

	transport.MountMedia(router, s.config.Media.Root)
	if s.config.Server.SiteDir != "" {
		transport.MountSite(router, s.config.Server.SiteDir)
	}

	return router
}

// rateLimiter returns nil unless limiting is enabled and redis is reachable
func (s *Server) rateLimiter() func(http.Handler) http.Handler {
	cfg := s.config.RateLimit
	if !cfg.Enabled {
		return nil
	}

	client, err := s.deps.connectRedis(context.Background(), s.config.Redis)
	if err != nil {
		s.logger.Warn("Rate limiting disabled, redis unavailable", zap.Error(err))
		return nil
	}

	return custommiddleware.RateLimitMiddleware(client, custommiddleware.RateLimitConfig{
		RequestsPerWindow: cfg.RequestsPerWindow,
		Window:            cfg.Window,
		KeyPrefix:         "ratelimit:" + s.config.Storage.RedisKeyPrefix,
	}, s.logger)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "ok",
		"storage": s.config.Storage.Backend,
	}
	code := http.StatusOK

	if s.deps.DB != nil {
		db := database.Health(r.Context(), s.deps.DB)
		status["database"] = db
		if db["status"] != "up" {
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	if s.deps.Redis != nil {
		if err := s.deps.Redis.Ping(r.Context()).Err(); err != nil {
			status["redis"] = "down"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		} else {
			status["redis"] = "up"
		}
	}

	custommiddleware.RespondWithJSON(w, code, status)
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if err := s.deps.Close(); err != nil {
		s.logger.Error("Failed to close server resources", zap.Error(err))
	}

	s.logger.Sync()
	return nil
}
