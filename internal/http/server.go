package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"budgetbuddy/internal/amqp"
	"budgetbuddy/internal/cache"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/middleware/auth"
	"budgetbuddy/internal/middleware/ratelimit"
	"budgetbuddy/internal/middleware/security"
	"budgetbuddy/internal/middleware/trace"
	"budgetbuddy/internal/ports"
)

// cacheCleanupInterval is how often idle managers are looked for.
const cacheCleanupInterval = time.Minute

// Deps are the collaborators the server is built from.
type Deps struct {
	Remote   ports.RemoteStore
	Accounts Accounts
	Tokens   Tokens
	// Publisher receives period events. Nil disables them.
	Publisher amqp.Publisher
	// Ready reports backend readiness for /readyz. Nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *log.Logger
	Now    func() time.Time
}

// Config tunes caching and rate limiting.
type Config struct {
	ManagerCacheSize   int
	ManagerCacheTTL    time.Duration
	RateLimitPerMinute int
	RateLimitBurst     int
}

type Server struct {
	http.Server

	accounts Accounts
	tokens   Tokens
	ready    func(ctx context.Context) error
	logger   *log.Logger
	now      func() time.Time

	registry *managerRegistry
	hub      *stateHub
	janitor  *cache.Janitor
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

func NewServer(addr string, cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		accounts: deps.Accounts,
		tokens:   deps.Tokens,
		ready:    deps.Ready,
		logger:   logger,
		now:      now,
		detector: security.NewDetector(),
		cancel:   cancel,
	}
	s.registry = newManagerRegistry(ctx, deps.Remote, deps.Publisher,
		cfg.ManagerCacheSize, cfg.ManagerCacheTTL, now, logger)
	s.hub = newStateHub(s.registry, logger)
	s.registry.onEvict = s.hub.closeUser

	s.janitor = cache.NewJanitor(logger)
	s.janitor.Register(s.registry.sessions)
	s.janitor.Start(cacheCleanupInterval)

	s.limiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		Burst:             cfg.RateLimitBurst,
	})
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	authn := auth.NewMiddleware(deps.Tokens, func(w http.ResponseWriter, _ *http.Request, status int, msg string) {
		ErrorResponse(status, msg).Write(w)
	})
	protect := func(h http.HandlerFunc) http.Handler { return authn.Require(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("POST /api/auth/logout", protect(s.handleLogout))
	mux.Handle("GET /api/auth/me", protect(s.handleMe))

	mux.Handle("GET /api/periods/current", protect(s.handleCurrentPeriod))
	mux.Handle("GET /api/periods/history", protect(s.handleHistory))
	mux.Handle("POST /api/periods", protect(s.handleCreatePeriod))
	mux.Handle("POST /api/periods/rollover", protect(s.handleRollover))
	mux.Handle("POST /api/periods/current/incomes", protect(s.handleAddIncome))
	mux.Handle("POST /api/periods/current/expenses", protect(s.handleAddExpense))
	mux.Handle("DELETE /api/periods/current/items/{id}", protect(s.handleRemoveLineItem))

	mux.Handle("GET /api/categories", protect(s.handleListCategories))
	mux.Handle("POST /api/categories", protect(s.handleAddCategory))
	mux.Handle("DELETE /api/categories/{id}", protect(s.handleRemoveCategory))

	mux.Handle("GET /api/invoices", protect(s.handleListInvoices))
	mux.Handle("POST /api/invoices", protect(s.handleAddInvoice))
	mux.Handle("POST /api/invoices/{id}/processed", protect(s.handleInvoiceProcessed))

	mux.Handle("GET /api/ws", authn.RequireAllowQuery(http.HandlerFunc(s.hub.handleWS)))

	limited := s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.IsMutating,
		func(w http.ResponseWriter, r *http.Request) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldComponent, log.ComponentRateLimit)
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Header("Retry-After", "60").Write(w)
		})(mux)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	handler := s.tracer.Middleware(s.detector.Middleware(headers.Middleware(limited)))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

// Shutdown stops accepting requests, then closes websocket feeds and every
// period manager.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
		s.janitor.Stop()
		s.limiter.Stop()
		if cerr := s.hub.close(); cerr != nil {
			s.logger.Debug("Closing websocket hub", log.FieldError, cerr)
		}
		s.registry.closeAll()
		s.cancel()

		tm := s.tracer.GetMetrics()
		s.logger.Info("HTTP server stopped",
			"total_requests", tm.TotalRequests,
			"avg_response_ms", tm.AverageResponseTime().Milliseconds(),
			"suspicious_requests", s.detector.GetMetrics().SuspiciousRequests,
			"rate_limited", s.limiter.GetMetrics().TotalHits)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(map[string]any{
		"status":      "ok",
		"managers":    s.registry.size(),
		"connections": s.hub.connections(),
	}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			ServiceUnavailableError("not ready").Write(w)
			return
		}
	}
	NewJSONResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

// logFailure logs client mistakes at info and everything else as an error.
func (s *Server) logFailure(ctx context.Context, msg string, err error, op string) {
	if ErrorFor(err).statusCode < http.StatusInternalServerError {
		log.FromContext(ctx).InfoContext(ctx, msg, log.FieldError, err, log.FieldOperation, op)
		return
	}
	log.LogError(ctx, msg, err, log.ComponentHTTP, op, nil)
}
