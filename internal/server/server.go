// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
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
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/inkpanel/panelpay/internal/audit"
	"github.com/inkpanel/panelpay/internal/billing"
	"github.com/inkpanel/panelpay/internal/checkout"
	"github.com/inkpanel/panelpay/internal/config"
	"github.com/inkpanel/panelpay/internal/journal"
	"github.com/inkpanel/panelpay/internal/ledger"
	"github.com/inkpanel/panelpay/internal/logging"
	"github.com/inkpanel/panelpay/internal/metrics"
	"github.com/inkpanel/panelpay/internal/pricing"
	"github.com/inkpanel/panelpay/internal/ratelimit"
	"github.com/inkpanel/panelpay/internal/realtime"
	"github.com/inkpanel/panelpay/internal/refund"
	"github.com/inkpanel/panelpay/internal/security"
	"github.com/inkpanel/panelpay/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	ledger       *ledger.Ledger
	journalStore journal.Store
	billingStore billing.Store
	reconciler   *billing.Reconciler
	refundCoord  *refund.Coordinator
	checkoutSvc  *checkout.Service
	auditor      audit.Recorder
	realtimeHub  *realtime.Hub

	// Injectable provider clients (tests swap these for fakes)
	refundProvider refund.ProviderClient
	sessionCreator checkout.SessionCreator

	spendLimiter *ratelimit.Limiter
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
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

// WithRefundProvider sets a custom refund provider (for testing)
func WithRefundProvider(p refund.ProviderClient) Option {
	return func(s *Server) {
		s.refundProvider = p
	}
}

// WithSessionCreator sets a custom checkout session creator (for testing)
func WithSessionCreator(c checkout.SessionCreator) Option {
	return func(s *Server) {
		s.sessionCreator = c
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	// Apply options first (may set logger or provider fakes)
	for _, opt := range opts {
		opt(s)
	}

	rule := pricing.Rule{
		PackPriceDollars: cfg.PackPriceDollars,
		PanelsPerPack:    cfg.PanelsPerPack,
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		s.ledger = ledger.New(ledger.NewPostgresStore(db))
		s.journalStore = journal.NewPostgresStore(db)
		s.billingStore = billing.NewPostgresStore(db)
		s.auditor = audit.NewPostgresRecorder(db, s.logger)
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")

		ledgerStore := ledger.NewMemoryStore()
		journalStore := journal.NewMemoryStore()
		s.ledger = ledger.New(ledgerStore)
		s.journalStore = journalStore
		s.billingStore = billing.NewMemoryStore(ledgerStore, journalStore)
		s.auditor = audit.NewSlogRecorder(s.logger)
	}

	// Realtime hub pushes balance changes to connected app clients
	s.realtimeHub = realtime.NewHub(logging.Component(s.logger, "realtime"))
	s.ledger.SetNotifier(s.realtimeHub)

	// Event reconciler: the only writer of credit grants
	s.reconciler = billing.NewReconciler(s.billingStore, rule, s.auditor, logging.Component(s.logger, "billing"))
	s.reconciler.SetNotifier(s.realtimeHub)

	// Refunds go through Stripe unless a fake was injected
	if s.refundProvider == nil && cfg.StripeSecretKey != "" {
		s.refundProvider = refund.NewStripeClient(cfg.StripeSecretKey)
	}
	if s.refundProvider != nil {
		s.refundCoord = refund.NewCoordinator(s.journalStore, s.refundProvider, s.auditor, s.logger)
	} else {
		s.logger.Warn("no Stripe secret key, refunds disabled")
	}

	if s.sessionCreator == nil && cfg.StripeSecretKey != "" {
		s.sessionCreator = checkout.NewStripeCreator(cfg.StripeSecretKey, cfg.SuccessURL, cfg.CancelURL)
	}
	if s.sessionCreator != nil {
		s.checkoutSvc = checkout.NewService(s.sessionCreator, rule, s.logger)
	} else {
		s.logger.Warn("no Stripe secret key, checkout disabled")
	}

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

	// CORS (the comic app runs on its own origin)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB, Stripe events and admin bodies are far smaller)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

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
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

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

// adminAuthMiddleware guards admin routes with the shared admin secret.
// In development with no secret configured it lets requests through.
func (s *Server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			if s.cfg.IsProduction() {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access not configured"})
				return
			}
			c.Set("actor", "dev")
			c.Next()
			return
		}

		provided := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.AdminSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin secret"})
			return
		}

		ctx := audit.WithActor(c.Request.Context(), "admin", c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/api", s.infoHandler)

	// WebSocket for real-time balance updates
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// Stripe webhook lives at the root, not under /v1: the URL is registered
	// with Stripe and never versioned away.
	billingHandler := billing.NewHandler(s.reconciler, s.cfg.StripeWebhookSecret, s.logger)
	root := s.router.Group("")
	billingHandler.RegisterWebhookRoutes(root)

	// V1 API group
	v1 := s.router.Group("/v1")

	// Balance read + spend. Spend gets its own rate limit so a looping
	// client cannot hammer the conditional-debit path.
	ledgerHandler := ledger.NewHandler(s.ledger, s.logger)
	s.spendLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerSecond: float64(s.cfg.SpendRateRPS),
		BurstSize:         s.cfg.SpendRateRPS * 2,
		CleanupInterval:   time.Minute,
	})
	ledgerHandler.RegisterRoutes(v1, s.spendLimiter.Middleware())

	// Purchase history
	journalHandler := journal.NewHandler(s.journalStore, s.logger)
	journalHandler.RegisterRoutes(v1)

	// Checkout session creation
	if s.checkoutSvc != nil {
		checkout.NewHandler(s.checkoutSvc).RegisterRoutes(v1)
	}

	// Admin routes (X-Admin-Secret)
	admin := v1.Group("")
	admin.Use(s.adminAuthMiddleware())
	{
		billingHandler.RegisterAdminRoutes(admin)
		journalHandler.RegisterAdminRoutes(admin)

		if s.refundCoord != nil {
			refund.NewHandler(s.refundCoord).RegisterAdminRoutes(admin)
		}

		admin.GET("/admin/stats", s.statsHandler)

		if pg, ok := s.auditor.(*audit.PostgresRecorder); ok {
			admin.GET("/admin/audit", func(c *gin.Context) {
				entries, err := pg.List(c.Request.Context(), 100)
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read audit log"})
					return
				}
				c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
			})
		}
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "in-memory"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "PanelPay",
		"description": "Credit ledger and payment reconciliation for panel generation",
		"version":     "0.1.0",
		"currency":    "USD",
		"packPrice":   s.cfg.PackPriceDollars,
		"packPanels":  s.cfg.PanelsPerPack,
	})
}

// statsHandler returns realtime hub stats plus a recent-purchase view.
// GET /v1/admin/stats
func (s *Server) statsHandler(c *gin.Context) {
	stats := gin.H{
		"realtime": s.realtimeHub.Stats(),
	}

	recent, err := s.journalStore.ListAll(c.Request.Context(), 10)
	if err == nil {
		stats["recentPurchases"] = recent
	}

	c.JSON(http.StatusOK, stats)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Collect database pool stats
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
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

	// Cancel the context for background goroutines (hub, stats collector)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.spendLimiter != nil {
		s.spendLimiter.Stop()
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
