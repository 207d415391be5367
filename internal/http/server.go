package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"

	"qacc/internal/config"
	"qacc/internal/core"
	"qacc/internal/donations"
	applog "qacc/internal/log"
	"qacc/internal/middleware/ratelimit"
	"qacc/internal/middleware/trace"
	"qacc/internal/passport"
	"qacc/internal/round"
	"qacc/internal/uploads"
)

type (
	RoundService interface {
		MostRecentEnded(ctx context.Context) (core.Round, error)
		FindRound(ctx context.Context, kind round.Kind, number int) (core.Round, error)
		CalculateCap(ctx context.Context, active core.Round, projectID int, includeCumulative bool) (core.CapResult, error)
	}

	DonationService interface {
		UserDonations(ctx context.Context, q donations.Query) (donations.Page, error)
	}

	DonationCapService interface {
		ProjectUserDonationCap(ctx context.Context, projectID int) (core.ProjectUserDonationCapKyc, error)
	}

	PassportService interface {
		Status(ctx context.Context, address string) (passport.Result, error)
		CheckScore(ctx context.Context, address string) (passport.Result, error)
	}

	UploadService interface {
		Upload(ctx context.Context, filename, declaredType string, r io.Reader) (uploads.Upload, error)
		Get(ctx context.Context, id string) (uploads.Upload, error)
		Delete(ctx context.Context, id string) error
	}

	// ReadinessChecker reports whether a dependency can serve requests.
	ReadinessChecker interface {
		Ping(ctx context.Context) error
	}

	// Deps are the services behind the API. A nil service leaves its routes
	// unregistered.
	Deps struct {
		Rounds       RoundService
		Donations    DonationService
		DonationCaps DonationCapService
		Passport     PassportService
		Uploads      UploadService
		Ready        []ReadinessChecker
		// Public is served as is on /api/config.
		Public *config.Public
	}

	Config struct {
		Addr           string
		RequestTimeout time.Duration
		MaxUploadBytes int64
		// RequestsPerMinute limits score checks and uploads per client.
		RequestsPerMinute int
		Logger            *slog.Logger
	}
)

type Server struct {
	http.Server
	deps    Deps
	cfg     Config
	logger  *slog.Logger
	limiter *ratelimit.Limiter
	tracer  *trace.Middleware
	metrics securityMetrics

	shutdownOnce sync.Once
}

// NewServer builds the JSON API.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 4 << 20
	}
	limiterCfg := ratelimit.DefaultConfig()
	if cfg.RequestsPerMinute > 0 {
		limiterCfg.RequestsPerMinute = cfg.RequestsPerMinute
	}

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		logger:  cfg.Logger.With(applog.FieldComponent, applog.ComponentHTTP),
		limiter: ratelimit.NewLimiter(limiterCfg),
		tracer:  trace.NewMiddleware(extractClientIP),
	}

	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "not found", RequestID: trace.GetRequestID(r.Context())})
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", RequestID: trace.GetRequestID(r.Context())})
	})
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		s.logger.ErrorContext(r.Context(), "Handler panic", "panic", v, applog.FieldPath, r.URL.Path)
		writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError), RequestID: trace.GetRequestID(r.Context())})
	}

	limited := s.limiter.Middleware(extractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded", RequestID: trace.GetRequestID(r.Context())})
	})

	router.HandlerFunc(http.MethodGet, "/healthz", s.handleHealth)
	router.HandlerFunc(http.MethodGet, "/readyz", s.handleReady)
	if deps.Public != nil {
		router.HandlerFunc(http.MethodGet, "/api/config", s.handlePublicConfig)
	}

	if deps.Rounds != nil {
		router.HandlerFunc(http.MethodGet, "/api/rounds/recent-ended", s.handleRecentEndedRound)
		router.HandlerFunc(http.MethodGet, "/api/projects/:projectID/cap", s.handleProjectCap)
	}
	if deps.DonationCaps != nil {
		router.HandlerFunc(http.MethodGet, "/api/projects/:projectID/donation-cap", s.handleDonationCap)
	}
	if deps.Donations != nil {
		router.HandlerFunc(http.MethodGet, "/api/projects/:projectID/users/:userID/donations", s.handleUserDonations)
	}
	if deps.Passport != nil {
		router.HandlerFunc(http.MethodGet, "/api/passport/:address", s.handlePassportStatus)
		router.Handler(http.MethodPost, "/api/passport/:address/check", limited(http.HandlerFunc(s.handlePassportCheck)))
	}
	if deps.Uploads != nil {
		router.Handler(http.MethodPost, "/api/uploads", limited(http.HandlerFunc(s.handleUpload)))
		router.HandlerFunc(http.MethodGet, "/api/uploads/:id", s.handleGetUpload)
		router.HandlerFunc(http.MethodDelete, "/api/uploads/:id", s.handleDeleteUpload)
	}

	var handler http.Handler = router
	handler = s.withTimeout(handler)
	handler = s.withSecurity(handler)
	handler = s.tracer.Middleware(handler)
	handler = applog.Middleware(&applog.Logger{Logger: s.logger})(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// withTimeout bounds the upstream calls a request can make.
func (s *Server) withTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePublicConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, r, http.StatusOK, s.deps.Public)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	for _, c := range s.deps.Ready {
		if err := c.Ping(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", "error", err)
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// Shutdown gracefully shuts down the server and its rate limiter. It is safe
// to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
