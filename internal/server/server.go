// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crisintel/cris/internal/config"
	"github.com/crisintel/cris/internal/featurestore"
	"github.com/crisintel/cris/internal/health"
	"github.com/crisintel/cris/internal/idgen"
	"github.com/crisintel/cris/internal/logging"
	"github.com/crisintel/cris/internal/metrics"
	"github.com/crisintel/cris/internal/model"
	"github.com/crisintel/cris/internal/ratelimit"
	"github.com/crisintel/cris/internal/realtime"
	"github.com/crisintel/cris/internal/retry"
	"github.com/crisintel/cris/internal/scoring"
	"github.com/crisintel/cris/internal/security"
	"github.com/crisintel/cris/internal/traces"
	"github.com/crisintel/cris/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	store        featurestore.Store
	loader       *model.Loader
	engine       *scoring.Engine
	realtimeHub  *realtime.Hub
	checks       *health.Registry
	rateLimiter  *ratelimit.Limiter
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	shutdownOTel func(context.Context) error
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStore sets a custom feature store (for testing)
func WithStore(store featurestore.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.Env),
	}

	// Apply options first (may set store/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Initialize the feature store unless one was injected
	if s.store == nil {
		switch cfg.StoreBackend {
		case config.BackendPostgres:
			store, err := featurestore.OpenPostgres(cfg.DatabaseURL, cfg.DBSchema, cfg.StoreTimeout)
			if err != nil {
				return nil, fmt.Errorf("open postgres feature store: %w", err)
			}
			s.store = store
			s.logger.Info("using PostgreSQL feature store", "url", maskDSN(cfg.DatabaseURL))

		case config.BackendSQLite:
			store, err := featurestore.OpenSQLite(cfg.SQLitePath, cfg.StoreTimeout)
			if err != nil {
				return nil, fmt.Errorf("open sqlite feature store: %w", err)
			}
			s.store = store
			s.logger.Info("using SQLite feature store", "path", cfg.SQLitePath)

		default:
			s.store = featurestore.NewMemoryStore()
			s.logger.Info("using in-memory feature store (data will not persist)")
		}
	}

	// Model loader and scoring engine
	s.loader = model.NewLoader(cfg.ModelsDir, s.logger)
	s.engine = scoring.NewEngine(s.store, s.loader, s.logger).
		WithConcurrency(cfg.ScoreConcurrency)

	// Health checks
	s.checks = health.NewRegistry()
	s.checks.Register("store", health.Ping("store", s.store.Ping))
	s.checks.Register("model", health.Flag("model", s.loader.Loaded, "model bundle not loaded"))

	// Create realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
		limiterCfg.BurstSize = s.cfg.RateLimitRPS
	}
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Hex(16)
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// requireAdmin guards mutating admin routes with the X-Admin-Secret header.
// In development without a configured secret the check is skipped.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			if s.cfg.IsDevelopment() {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "admin_disabled",
				"message": "Admin API is disabled: no ADMIN_SECRET configured",
			})
			return
		}

		got := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.AdminSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Invalid admin secret",
			})
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/healthz", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :id URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.IDParamMiddleware())

	// Customer directory
	v1.GET("/customers", s.listCustomersHandler)

	// Scoring
	v1.GET("/customers/:id/score", s.scoreCustomerHandler)
	v1.GET("/scores", s.scoresHandler)
	v1.GET("/scores/export", s.exportScoresHandler)
	v1.GET("/portfolio/summary", s.portfolioSummaryHandler)

	// Model
	v1.GET("/model", s.modelInfoHandler)

	// Admin routes
	admin := v1.Group("/admin")
	admin.Use(s.requireAdmin())
	admin.POST("/model/reload", s.reloadModelHandler)

	// WebSocket for real-time streaming
	v1.GET("/feed", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})
	v1.GET("/feed/stats", s.feedStatsHandler)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing
	shutdownOTel, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownOTel = shutdownOTel
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"backend", s.cfg.StoreBackend,
			"models_dir", s.cfg.ModelsDir,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Export DB pool stats when a SQL store is in use
	if sqlStore, ok := s.store.(*featurestore.SQLStore); ok {
		go metrics.StartDBStatsCollector(runCtx, sqlStore.DB(), 15*time.Second)
	}

	// Warm up: the store must answer and the model must load before we
	// accept traffic. A missing model is fatal; a slow store is retried.
	go func() {
		if err := retry.Do(runCtx, 5, time.Second, func() error {
			return s.store.Ping(runCtx)
		}); err != nil {
			s.logger.Error("feature store unreachable", "error", err)
			errChan <- fmt.Errorf("feature store unreachable: %w", err)
			return
		}

		if _, err := s.loader.Bundle(); err != nil {
			s.logger.Error("model load failed", "error", err)
			errChan <- fmt.Errorf("model load failed: %w", err)
			return
		}

		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		s.shutdownQuiet()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.shutdownQuiet()
	s.logger.Info("server stopped")
	return nil
}

// shutdownQuiet releases resources without touching the HTTP listener.
func (s *Server) shutdownQuiet() {
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	// Flush traces
	if s.shutdownOTel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.shutdownOTel(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	// Close feature store connection pool
	if err := s.store.Close(); err != nil {
		s.logger.Error("feature store close error", "error", err)
	} else {
		s.logger.Info("feature store closed")
	}
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

