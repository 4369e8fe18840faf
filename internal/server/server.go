// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	osignal "os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/arjunrm/scamshield/internal/auth"
	"github.com/arjunrm/scamshield/internal/config"
	"github.com/arjunrm/scamshield/internal/health"
	"github.com/arjunrm/scamshield/internal/logging"
	"github.com/arjunrm/scamshield/internal/metrics"
	"github.com/arjunrm/scamshield/internal/notify"
	"github.com/arjunrm/scamshield/internal/ratelimit"
	"github.com/arjunrm/scamshield/internal/realtime"
	"github.com/arjunrm/scamshield/internal/retry"
	"github.com/arjunrm/scamshield/internal/scoring"
	"github.com/arjunrm/scamshield/internal/security"
	"github.com/arjunrm/scamshield/internal/session"
	"github.com/arjunrm/scamshield/internal/signal"
	"github.com/arjunrm/scamshield/internal/traces"
	"github.com/arjunrm/scamshield/internal/validation"
	"github.com/arjunrm/scamshield/internal/voice"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	scorer       *scoring.Service
	sessions     *session.Manager
	sweeper      *session.Sweeper
	matcher      *voice.Matcher
	voiceStore   voice.Store
	authMgr      *auth.Manager
	webhooks     *notify.Dispatcher
	webhookStore notify.Store
	emitter      *notify.Emitter
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	healthReg    *health.Registry
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc         // cancels background goroutines started in Run
	stopTraces   func(context.Context) error

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

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Tracing (no-op when no OTLP endpoint is configured)
	stopTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.stopTraces = stopTraces
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		scoringStore scoring.Store
		sessionStore session.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection, retrying briefly in case the database is
		// still coming up alongside us.
		if err := retry.Do(ctx, 5, 500*time.Millisecond, func() error {
			return db.PingContext(ctx)
		}); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		// Risk assessments with Postgres
		assessmentStore := scoring.NewPostgresStore(db)
		if err := assessmentStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate assessment store", "error", err)
		}
		scoringStore = assessmentStore

		// Call sessions and alerts with Postgres
		callStore := session.NewPostgresStore(db)
		if err := callStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate session store", "error", err)
		}
		sessionStore = callStore

		// Voiceprints with Postgres
		printStore := voice.NewPostgresStore(db)
		if err := printStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate voiceprint store", "error", err)
		}
		s.voiceStore = printStore

		// API keys with Postgres
		authStore := auth.NewPostgresStore(db)
		if err := authStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate auth store", "error", err)
		}
		s.authMgr = auth.NewManager(authStore)

		// Webhooks with Postgres
		webhookStore := notify.NewPostgresStore(db)
		if err := webhookStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate webhook store", "error", err)
		}
		s.webhookStore = webhookStore
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		scoringStore = scoring.NewMemoryStore()
		sessionStore = session.NewMemoryStore()
		s.voiceStore = voice.NewMemoryStore()
		s.authMgr = auth.NewManager(auth.NewMemoryStore())
		s.webhookStore = notify.NewMemoryStore()
	}

	// Scoring engine; the caller analyzer needs to know which dialing
	// prefix counts as domestic.
	s.scorer = scoring.NewService(scoringStore).WithAnalyzers(
		&signal.CallerAnalyzer{HomePrefix: cfg.HomeCountryCode},
		&signal.ContentAnalyzer{},
		&signal.TemporalAnalyzer{},
		&signal.FinancialAnalyzer{},
	)

	// Webhook delivery
	s.webhooks = notify.NewDispatcher(s.webhookStore).WithFallbackSecret(cfg.WebhookSecret)
	s.emitter = notify.NewEmitter(s.webhooks, s.logger)
	s.logger.Info("webhooks enabled")

	// Realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	// Live call sessions. Alerts and lifecycle events fan out to both
	// webhook subscribers and connected WebSocket clients.
	s.sessions = session.NewManager(s.scorer, sessionStore).
		WithIdleTimeout(cfg.SessionIdleTimeout).
		WithNotifier(&alertFanout{emitter: s.emitter, hub: s.realtimeHub}).
		WithLifecycle(&sessionEventFanout{emitter: s.emitter, hub: s.realtimeHub})
	s.sweeper = session.NewSweeper(s.sessions, cfg.SessionSweepEvery)

	// Voiceprint matching
	s.matcher = voice.NewMatcher(s.voiceStore).
		WithThresholds(cfg.VoiceMatchThreshold, cfg.VoiceScammerThreshold)

	s.logger.Info("API authentication enabled")

	// Health checks
	s.healthReg = health.NewRegistry()
	if s.db != nil {
		s.healthReg.Register("database", func(ctx context.Context) health.Status {
			if err := s.db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}
	s.healthReg.Register("sessions", func(ctx context.Context) health.Status {
		return health.Status{
			Name:    "sessions",
			Healthy: true,
			Detail:  fmt.Sprintf("%d active", s.sessions.ActiveCount()),
		}
	})

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
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
		rlCfg.BurstSize = s.cfg.RateLimitRPS
	}
	s.rateLimiter = ratelimit.New(rlCfg)
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
			requestID = generateRequestID()
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

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Live monitoring dashboard
	s.router.GET("/", dashboardHandler)

	// WebSocket for real-time alert streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group. Authentication is soft here: anonymous classification
	// is allowed, and handlers attribute data to the key's user when one
	// is presented.
	v1 := s.router.Group("/v1")
	v1.Use(auth.Middleware(s.authMgr))

	// AUTH (public)
	authHandler := auth.NewHandler(s.authMgr)
	v1.GET("/auth/info", authHandler.Info)
	v1.POST("/auth/signup", authHandler.Signup)

	// One-shot classification and assessment history
	scoring.NewHandler(s.scorer).RegisterRoutes(v1)

	// Live call sessions and in-call alerts
	session.NewHandler(s.sessions).RegisterRoutes(v1)

	// Voiceprint enrollment and matching
	voice.NewHandler(s.matcher, s.voiceStore).
		WithEvents(&scammerEventFanout{emitter: s.emitter, hub: s.realtimeHub}).
		RegisterRoutes(v1)

	// PROTECTED ROUTES (require API key)
	protected := v1.Group("")
	protected.Use(auth.RequireAuth(s.authMgr))
	{
		// Webhook management
		notify.NewHandler(s.webhookStore, s.webhooks).RegisterRoutes(protected)

		// API key management
		protected.GET("/auth/keys", authHandler.ListKeys)
		protected.POST("/auth/keys", authHandler.CreateKey)
		protected.DELETE("/auth/keys/:keyId", authHandler.RevokeKey)
		protected.POST("/auth/keys/:keyId/regenerate", authHandler.RegenerateKey)
		protected.GET("/auth/me", authHandler.GetCurrentUser)
	}

	// Admin routes. RequireAdmin checks X-Admin-Secret (or allows any
	// authenticated caller in demo mode).
	admin := v1.Group("/admin")
	admin.Use(auth.RequireAdmin())
	admin.GET("/stats", s.adminStatsHandler)
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
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.healthReg.CheckAll(ctx)

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
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
		"name":        "ScamShield",
		"description": "Multi-signal scam risk scoring for phone calls",
		"version":     "0.1.0",
		"docs":        "/v1/auth/info",
	})
}

// adminStatsHandler aggregates operational stats across subsystems
func (s *Server) adminStatsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	stats := gin.H{
		"activeSessions": s.sessions.ActiveCount(),
		"realtime":       s.realtimeHub.Stats(),
	}

	if byTier, err := s.scorer.Stats(ctx); err == nil {
		stats["assessmentsByTier"] = byTier
	}

	c.JSON(http.StatusOK, stats)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
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

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start idle-session sweeper
	s.sweeper.Start(runCtx)

	// Start DB stats collector
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, time.Minute)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	osignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

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

	// Cancel the context for all background goroutines (hub, sweeper, collectors)
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

	// Stop idle-session sweeper
	if s.sweeper != nil {
		s.sweeper.Stop()
		s.logger.Info("session sweeper stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.stopTraces != nil {
		if err := s.stopTraces(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
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

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// -----------------------------------------------------------------------------
// Event fanout adapters
// -----------------------------------------------------------------------------

// alertFanout forwards in-call alerts to webhook subscribers and
// connected WebSocket clients.
type alertFanout struct {
	emitter *notify.Emitter
	hub     *realtime.Hub
}

var _ session.Notifier = (*alertFanout)(nil)

func (f *alertFanout) NotifyAlert(ctx context.Context, a *session.Alert) {
	f.emitter.NotifyAlert(ctx, a)
	f.hub.NotifyAlert(ctx, a)
}

// sessionEventFanout forwards session lifecycle events to webhook
// subscribers and connected WebSocket clients.
type sessionEventFanout struct {
	emitter *notify.Emitter
	hub     *realtime.Hub
}

var _ session.Lifecycle = (*sessionEventFanout)(nil)

func (f *sessionEventFanout) SessionStarted(s *session.Session) {
	f.emitter.EmitSessionStarted(s.UserID, s.ID, s.PhoneNumber)
	f.hub.BroadcastSessionStarted(s)
}

func (f *sessionEventFanout) SessionEnded(s *session.Session) {
	f.emitter.EmitSessionEnded(s.UserID, s)
	f.hub.BroadcastSessionEnded(s)
}

// scammerEventFanout forwards known-scammer voice matches.
type scammerEventFanout struct {
	emitter *notify.Emitter
	hub     *realtime.Hub
}

var _ voice.EventSink = (*scammerEventFanout)(nil)

func (f *scammerEventFanout) ScammerDetected(userID, fingerprintID string, similarity float64) {
	f.emitter.EmitScammerDetected(userID, fingerprintID, similarity)
	f.hub.BroadcastScammerMatch(userID, fingerprintID, similarity)
}
