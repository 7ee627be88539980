package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"conti/internal/auth"
	"conti/internal/log"
	"conti/internal/middleware/ratelimit"
	"conti/internal/middleware/security"
	"conti/internal/middleware/trace"
	"conti/internal/services"
)

// ReadyFunc reports whether a dependency can serve requests.
type ReadyFunc func(ctx context.Context) error

// Options configures the API server. Only Service is required.
type Options struct {
	Service *services.ReconciliationService
	// Tokens verifies bearer tokens; nil disables authentication.
	Tokens *auth.Tokens
	// Ready checks run by /readyz, keyed by dependency name.
	Ready              map[string]ReadyFunc
	CORSAllowedOrigins []string
	RateLimit          ratelimit.Config
	Logger             *log.Logger
}

type Server struct {
	http.Server
	svc      *services.ReconciliationService
	tokens   *auth.Tokens
	ready    map[string]ReadyFunc
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. Call Shutdown to release its background goroutines.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	detector := security.NewDetector()

	s := &Server{
		svc:      opts.Service,
		tokens:   opts.Tokens,
		ready:    opts.Ready,
		logger:   logger.WithComponent(log.ComponentHTTP),
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		detector: detector,
		tracer:   trace.NewMiddleware(detector.ClientIP),
		started:  time.Now(),
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(opts.CORSAllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(log.Middleware(s.logger))
	r.Use(log.RequestIDMiddleware(func(r *http.Request) string { return chimw.GetReqID(r.Context()) }))
	r.Use(log.AccessLog(s.detector.ClientIP))
	r.Use(s.detector.Middleware)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.tracer.Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
		}, http.MethodPost, http.MethodDelete))
		r.Use(s.authenticate)

		r.Post("/groups", s.handleCreateGroup)
		r.Route("/groups/{groupID}", func(r chi.Router) {
			r.Use(s.authorizeGroup)

			r.Get("/", s.handleGetGroup)
			r.Post("/members", s.handleAddMember)
			r.Post("/expenses", s.handleAddExpense)
			r.Delete("/expenses/{expenseID}", s.handleDeleteExpense)
			r.Post("/expenses/{expenseID}/shares/{memberID}/paid", s.handleMarkSharePaid)
			r.Post("/chores", s.handleAddChore)
			r.Post("/chores/{choreID}/complete", s.handleCompleteChore)

			r.Get("/report", s.handleReport)
			r.Get("/balances", s.handleBalances)
			r.Get("/settlements", s.handleSettlements)
			r.Get("/fairness", s.handleFairness)
		})
	})

	if len(allowedOrigins) == 0 {
		return r
	}
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "If-None-Match"},
		ExposedHeaders: []string{"ETag", "Retry-After"},
		MaxAge:         600,
	}).Handler(r)
}

// authenticate verifies the bearer token and stores its claims in the
// request context. It is a no-op when authentication is disabled.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokens == nil {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := cutBearer(header)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="conti"`)
			ErrorResponse(http.StatusUnauthorized, "missing bearer token").Write(w)
			return
		}
		claims, err := s.tokens.Verify(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="conti", error="invalid_token"`)
			writeError(w, r, err)
			return
		}
		ctx := auth.NewContext(r.Context(), claims)
		ctx = log.WithLogger(ctx, log.FromContext(ctx).With(log.FieldMemberID, claims.MemberID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authorizeGroup rejects requests for a group the token does not grant.
func (s *Server) authorizeGroup(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokens == nil {
			next.ServeHTTP(w, r)
			return
		}
		claims, ok := auth.FromContext(r.Context())
		if !ok || !claims.CanAccess(chi.URLParam(r, "groupID")) {
			writeError(w, r, auth.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func cutBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

// Shutdown gracefully shuts down the server and the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
