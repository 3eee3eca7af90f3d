package services

import (
	"context"
	"fmt"
	"time"

	"github.com/nexconsult/mca-verify/internal/artifacts"
	"github.com/nexconsult/mca-verify/internal/browser"
	"github.com/nexconsult/mca-verify/internal/captcha"
	"github.com/nexconsult/mca-verify/internal/config"
	"github.com/nexconsult/mca-verify/internal/document"
	"github.com/nexconsult/mca-verify/internal/export"
	"github.com/nexconsult/mca-verify/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Container holds all service dependencies
type Container struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client

	CacheService   *CacheService
	CaptchaService *CaptchaService
	Launcher       *browser.Launcher
	Artifacts      *artifacts.Store
	Engine         *Engine
	Pool           *worker.Pool

	stopCleanup context.CancelFunc
}

// browserLauncher exposes a browser.Launcher as a SurfaceLauncher
type browserLauncher struct {
	*browser.Launcher
}

func (b browserLauncher) Open(ctx context.Context) (Surface, error) {
	s, err := b.Launcher.Open(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewContainer creates a new service container
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	container := &Container{
		config: cfg,
		logger: logger,
	}

	container.initRedis()

	if err := container.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return container, nil
}

// initRedis connects to Redis; on failure the cache runs in memory only
func (c *Container) initRedis() {
	if !c.config.Redis.Enabled {
		c.logger.Info("Redis disabled, using in-memory cache")
		return
	}

	c.redisClient = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", c.config.Redis.Host, c.config.Redis.Port),
		Password:     c.config.Redis.Password,
		DB:           c.config.Redis.DB,
		PoolSize:     c.config.Redis.PoolSize,
		DialTimeout:  c.config.Redis.DialTimeout,
		ReadTimeout:  c.config.Redis.ReadTimeout,
		WriteTimeout: c.config.Redis.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Redis.DialTimeout+time.Second)
	defer cancel()
	if err := c.redisClient.Ping(ctx).Err(); err != nil {
		c.logger.WithError(err).Warn("Redis connection failed, running with in-memory cache")
		_ = c.redisClient.Close()
		c.redisClient = nil
		return
	}
	c.logger.Info("Redis connection established")
}

// initServices initializes all services
func (c *Container) initServices() error {
	c.CacheService = NewCacheService(c.redisClient, c.config.Redis.ResultTTL, c.logger)
	cleanupCtx, cancel := context.WithCancel(context.Background())
	c.stopCleanup = cancel
	c.CacheService.StartCleanupRoutine(cleanupCtx, 5*time.Minute)

	store, err := artifacts.NewStore(c.config.Storage.ArtifactsDir, c.config.Storage.Enabled, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize artifact store: %w", err)
	}
	c.Artifacts = store

	sink, err := export.New(c.config.Export.Format, c.config.Export.Dir, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize export sink: %w", err)
	}

	client := captcha.NewClient(captcha.Options{
		APIKey:         c.config.Captcha.APIKey,
		BaseURL:        c.config.Captcha.BaseURL,
		PollInterval:   c.config.Captcha.PollInterval,
		SolveTimeout:   c.config.Captcha.SolveTimeout,
		HTTPTimeout:    c.config.Captcha.HTTPTimeout,
		RequestsPerSec: c.config.Captcha.RequestsPerSec,
		BalanceTTL:     c.config.Captcha.BalanceTTL,
	}, c.logger)

	clock := RealClock()
	c.CaptchaService = NewCaptchaService(c.config.Captcha, client, store, clock, c.logger)
	c.Launcher = browser.NewLauncher(c.config.Browser, c.logger)

	c.Engine = NewEngine(c.config, EngineDeps{
		Launcher: browserLauncher{c.Launcher},
		Captcha:  c.CaptchaService,
		Parser:   document.NewParser(c.logger),
		Store:    store,
		Sink:     sink,
		Cache:    c.CacheService,
		Clock:    clock,
		Registry: DefaultRegistry(),
	}, c.logger)

	c.Pool = worker.NewPool(worker.Options{
		Workers:    c.config.Worker.Workers,
		QueueSize:  c.config.Worker.QueueSize,
		JobTimeout: c.config.Worker.JobTimeout,
		JobTTL:     c.config.Worker.JobTTL,
	}, c.Engine, c.CacheService, c.logger)

	return nil
}

// Close stops the workers and closes all service connections
func (c *Container) Close() error {
	var errs []error

	if c.Pool != nil {
		c.Pool.Stop()
	}
	if c.stopCleanup != nil {
		c.stopCleanup()
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}

// Health checks the health of all services
func (c *Container) Health() map[string]interface{} {
	health := make(map[string]interface{})

	if c.CacheService != nil {
		health["cache"] = c.CacheService.Health()
	}
	if c.Engine != nil {
		engine := c.Engine.Health()
		if b, ok := engine["browser"]; ok {
			health["browser"] = b
			delete(engine, "browser")
		}
		if cs, ok := engine["captcha"]; ok {
			health["captcha"] = cs
			delete(engine, "captcha")
		}
		health["engine"] = engine
	}
	if c.Artifacts != nil {
		health["artifacts"] = c.Artifacts.Health()
	}
	if c.Pool != nil {
		health["worker"] = c.Pool.Health()
	}

	return health
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logrus.Logger {
	return c.logger
}
