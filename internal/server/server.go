package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	api "github.com/GriffinCanCode/snapcache/internal/api/http"
	"github.com/GriffinCanCode/snapcache/internal/api/middleware"
	"github.com/GriffinCanCode/snapcache/internal/cache"
	"github.com/GriffinCanCode/snapcache/internal/debugdump"
	"github.com/GriffinCanCode/snapcache/internal/fetch"
	"github.com/GriffinCanCode/snapcache/internal/infrastructure/config"
	"github.com/GriffinCanCode/snapcache/internal/infrastructure/logging"
	"github.com/GriffinCanCode/snapcache/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/snapcache/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/snapcache/internal/inline"
	"github.com/GriffinCanCode/snapcache/internal/loader"
	"github.com/GriffinCanCode/snapcache/internal/task"
	"github.com/GriffinCanCode/snapcache/internal/transform"
)

// Store is a cache backing store the server owns.
type Store interface {
	cache.Store
	Close() error
}

// Keyer lists the keys of a store that can enumerate them.
type Keyer interface {
	Keys(ctx context.Context) ([]string, error)
}

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	mu       sync.Mutex
	http     *http.Server
	config   *config.Config
	logger   *logging.Logger
	registry *prometheus.Registry
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	store    Store
	cache    *cache.Cache
	fetcher  *fetch.Fetcher
	builds   *task.Manager
	loader   *loader.Loader
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger := logging.NewFromLevel(cfg.Logging.Level, cfg.Logging.Development)
	return New(cfg, logger)
}

// New wires every component from cfg.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Initializing snapcache",
		zap.String("port", cfg.Server.Port),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Int("workers", cfg.Build.Workers),
	)

	// Metrics first, everything below reports into them.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	tracer := tracing.New("snapcache", logger.Component("tracing"))

	store, err := openStore(cfg.Cache)
	if err != nil {
		tracer.Close()
		return nil, err
	}
	contentCache := cache.New(store, logger.Component("cache"), metrics)

	fetcher := fetch.New(fetch.Options{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.Fetch.Timeout,
		MaxRetries:   cfg.Fetch.MaxRetries,
		RateLimit:    cfg.Fetch.RateLimit,
		SniffCharset: cfg.Fetch.SniffCharset,
		Logger:       logger.Component("fetch"),
	})

	engine := inline.NewEngine(fetcher, inline.Options{
		Concurrency: cfg.Fetch.Concurrency,
		Logger:      logger.Component("inline"),
		Metrics:     metrics,
	})

	builds := task.NewManager(task.Deps{
		Cache:   contentCache,
		Fetcher: fetcher,
		Inliner: engine,
		Dumper:  debugdump.New(cfg.Debug.DumpDir),
		Logger:  logger.Component("build"),
		Metrics: metrics,
		Tracer:  tracer,
	}, cfg.Build.Workers)

	buildOpts := BuildOptions(cfg, logger.Component("build"))
	pageLoader := loader.New(contentCache, builds, buildOpts, logger.Component("loader"))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := api.NewHandlers(api.Deps{
		Loader:   pageLoader,
		Builds:   builds,
		Cache:    contentCache,
		Fetcher:  fetcher,
		Gatherer: registry,
		Build:    buildOpts,
		Logger:   logger.Component("http"),
	})
	handlers.Register(router)

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		config:   cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		tracer:   tracer,
		store:    store,
		cache:    contentCache,
		fetcher:  fetcher,
		builds:   builds,
		loader:   pageLoader,
	}, nil
}

// BuildOptions derives the per-build template from cfg.
func BuildOptions(cfg *config.Config, logger *zap.Logger) task.Options {
	opts := task.Options{
		AlwaysRebuild: cfg.Build.AlwaysRebuild,
		UserAgent:     cfg.Fetch.UserAgent,
		OnComplete: func(r task.Result) {
			switch {
			case r.Err != nil:
				logger.Warn("build finished with error", zap.String("url", r.Request.URL.String()), zap.Error(r.Err))
			case r.AlreadyCached:
				logger.Debug("build skipped, already cached", zap.String("url", r.Request.URL.String()))
			default:
				logger.Debug("build finished",
					zap.String("url", r.Request.URL.String()),
					zap.Int("unresolved", r.Report.Unresolved()),
				)
			}
		},
	}
	if len(cfg.Transform.RemoveSelectors) > 0 {
		opts.Postprocessor = transform.RemoveSelectors(cfg.Transform.RemoveSelectors...)
	}
	return opts
}

func openStore(cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		store, err := cache.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache store: %w", err)
		}
		return store, nil
	default:
		return memoryStore{cache.NewMemoryStore()}, nil
	}
}

type memoryStore struct {
	*cache.MemoryStore
}

func (memoryStore) Close() error { return nil }

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Cache returns the content cache.
func (s *Server) Cache() *cache.Cache { return s.cache }

// Builds returns the build manager.
func (s *Server) Builds() *task.Manager { return s.builds }

// Loader returns the load-with-caching entry point.
func (s *Server) Loader() *loader.Loader { return s.loader }

// Logger returns the root logger.
func (s *Server) Logger() *logging.Logger { return s.logger }

// Keys lists cached URLs when the store can enumerate them.
func (s *Server) Keys(ctx context.Context) ([]string, error) {
	keyer, ok := s.store.(Keyer)
	if !ok {
		return nil, fmt.Errorf("cache backend %q cannot list entries", s.config.Cache.Backend)
	}
	return keyer.Keys(ctx)
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, cancels builds and releases the store.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := s.builds.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("build shutdown: %w", err))
	}
	s.tracer.Close()
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close cache store: %w", err))
	}
	_ = s.logger.Sync()
	return errors.Join(errs...)
}

// Close shuts down with a short grace period.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
