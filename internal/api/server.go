package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/mca-verify/internal/api/handlers"
	"github.com/nexconsult/mca-verify/internal/api/middleware"
	"github.com/nexconsult/mca-verify/internal/config"
	"github.com/nexconsult/mca-verify/internal/services"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Backend is what the HTTP layer serves
type Backend struct {
	Engine services.EngineInterface
	Cache  services.CacheServiceInterface
	Jobs   handlers.JobQueue
	Health handlers.HealthChecker
}

// BackendFrom exposes a service container to the HTTP layer
func BackendFrom(c *services.Container) Backend {
	return Backend{
		Engine: c.Engine,
		Cache:  c.CacheService,
		Jobs:   c.Pool,
		Health: c,
	}
}

// Server represents the HTTP server
type Server struct {
	Router  *gin.Engine
	config  *config.Config
	logger  *logrus.Logger
	backend Backend

	limiter *middleware.RateLimiter
	cancel  context.CancelFunc
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, logger *logrus.Logger, backend Backend) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	server := &Server{
		config:  cfg,
		logger:  logger,
		backend: backend,
		limiter: middleware.NewRateLimiter(ctx, cfg.Security.RateLimit),
		cancel:  cancel,
	}

	server.setupRouter()
	return server
}

// Close stops background work owned by the server
func (s *Server) Close() {
	s.cancel()
}

// setupRouter configures the router with all routes and middleware
func (s *Server) setupRouter() {
	s.Router = gin.New()

	s.Router.Use(middleware.Logger(s.logger))
	s.Router.Use(middleware.Recovery(s.logger))
	s.Router.Use(middleware.CORS(s.config.Security.CORS))
	s.Router.Use(middleware.Security())
	s.Router.Use(middleware.RequestID())

	healthHandler := handlers.NewHealthHandler(s.backend.Health, s.logger)
	s.Router.GET("/health", healthHandler.GetHealth)
	s.Router.GET("/health/ready", healthHandler.GetReadiness)
	s.Router.GET("/health/live", healthHandler.GetLiveness)
	s.Router.GET("/metrics", handlers.NewMetricsHandler(s.backend.Health, s.limiter, s.logger).GetMetrics)

	if s.config.Server.Environment != "production" {
		s.Router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
		s.Router.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
		})
	}

	v1 := s.Router.Group("/api/v1")
	v1.Use(s.limiter.Middleware())
	{
		v1.GET("/targets", handlers.NewTargetHandler(s.backend.Engine).List)

		queryHandler := handlers.NewQueryHandler(s.backend.Engine, s.backend.Jobs, s.logger)
		queries := v1.Group("/queries")
		{
			queries.POST("", queryHandler.Submit)
			queries.GET("/stats", queryHandler.Stats)
			queries.GET("/:id", queryHandler.Get)
		}

		cacheHandler := handlers.NewCacheHandler(s.backend.Engine, s.backend.Cache, s.logger)
		cache := v1.Group("/cache")
		{
			cache.GET("/stats", cacheHandler.GetStats)
			cache.DELETE("/:target/:identifier", cacheHandler.Delete)
		}
	}

	s.Router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "Not Found",
			"message":   "The requested resource was not found",
			"timestamp": time.Now(),
			"path":      c.Request.URL.Path,
		})
	})

	s.Router.HandleMethodNotAllowed = true
	s.Router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error":     "Method Not Allowed",
			"message":   "The requested method is not allowed for this resource",
			"timestamp": time.Now(),
			"path":      c.Request.URL.Path,
			"method":    c.Request.Method,
		})
	})
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully
func Serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger, container *services.Container) error {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := NewServer(cfg, logger, BackendFrom(container))
	defer server.Close()

	container.Pool.Start()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"port":        cfg.Server.Port,
			"environment": cfg.Server.Environment,
		}).Info("Server starting...")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exited")
	return nil
}
