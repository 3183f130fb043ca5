package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/loan-ledger-go/internal/shell"
	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
)

const (
	logMsgRequest            = "http request"
	logMsgRequestFailed      = "http request failed"
	logMsgRequestUnavailable = "http request failed with a transient ledger error"
	logMsgEncodeFailed       = "encoding http response failed"
	logMsgHealthCheckFailed  = "health check failed"
	logAttrMethod            = "method"
	logAttrPath              = "path"
	logAttrStatus            = "status"
	logAttrDurationMS        = "duration_ms"
	logAttrRequestID         = "request_id"
	logAttrError             = "error"

	maxBodyBytes = 1 << 20
)

// Ledger is the set of ledger operations the HTTP adapter exposes.
// *postgresengine.Ledger implements it.
type Ledger interface {
	AddTitle(ctx context.Context, params loanledger.NewTitleParams) (loanledger.Title, error)
	GetTitle(ctx context.Context, titleID uuid.UUID) (loanledger.Title, error)
	WithdrawTitle(ctx context.Context, titleID uuid.UUID) error
	CreateLoan(ctx context.Context, params loanledger.CreateLoanParams) (uuid.UUID, error)
	GetByID(ctx context.Context, loanID uuid.UUID) (loanledger.Loan, error)
	GetByBorrower(ctx context.Context, borrowerID uuid.UUID) (loanledger.Loans, error)
	GetAll(ctx context.Context, filter loanledger.LoanFilter) (loanledger.Loans, error)
	SweepOverdue(ctx context.Context) (int64, error)
	RegisterReturn(ctx context.Context, loanID uuid.UUID) (loanledger.ReturnResult, error)
	Approve(ctx context.Context, loanID uuid.UUID) (bool, error)
	Cancel(ctx context.Context, loanID uuid.UUID, reason string) (bool, error)
}

// HealthCheckFunc reports whether the backing database is reachable.
type HealthCheckFunc func(ctx context.Context) error

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and failure logger.
func WithLogger(logger loanledger.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithClock sets the clock loan due dates are computed from. It should be the ledger's clock.
func WithClock(clock loanledger.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

// WithHealthCheck sets the check behind GET /healthz.
func WithHealthCheck(check HealthCheckFunc) Option {
	return func(s *Server) { s.healthCheck = check }
}

// WithRetryOptions configures the retry of transient ledger failures.
func WithRetryOptions(options ...shell.RetryOption) Option {
	return func(s *Server) { s.retryOptions = options }
}

// WithRetryMetrics labels retry metrics with the ledger operation.
func WithRetryMetrics(collector loanledger.MetricsCollector) Option {
	return func(s *Server) { s.retryMetrics = collector }
}

// WithDebugHandler mounts handler under GET /debug/metrics.
func WithDebugHandler(handler http.Handler) Option {
	return func(s *Server) { s.debugHandler = handler }
}

// Server is the HTTP adapter. It implements http.Handler.
type Server struct {
	ledger       Ledger
	logger       loanledger.Logger
	clock        loanledger.Clock
	healthCheck  HealthCheckFunc
	retryOptions []shell.RetryOption
	retryMetrics loanledger.MetricsCollector
	debugHandler http.Handler
	validator    *requestValidator
	router       chi.Router
}

// NewServer creates a Server with all routes configured.
func NewServer(ledger Ledger, options ...Option) *Server {
	s := &Server{
		ledger:    ledger,
		logger:    discardLogger{},
		clock:     loanledger.SystemClock(),
		validator: newRequestValidator(),
		router:    chi.NewRouter(),
	}

	for _, option := range options {
		option(s)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)

	if s.debugHandler != nil {
		s.router.Method(http.MethodGet, "/debug/metrics", s.debugHandler)
	}

	s.router.Route("/titles", func(r chi.Router) {
		r.Post("/", s.handleAddTitle)
		r.Get("/{id}", s.handleGetTitle)
		r.Delete("/{id}", s.handleWithdrawTitle)
	})

	s.router.Route("/loans", func(r chi.Router) {
		r.Post("/", s.handleCreateLoan)
		r.Get("/", s.handleListLoans)
		r.Get("/{id}", s.handleGetLoan)
		r.Post("/{id}/approve", s.handleApproveLoan)
		r.Post("/{id}/return", s.handleReturnLoan)
		r.Post("/{id}/cancel", s.handleCancelLoan)
	})

	s.router.Get("/borrowers/{id}/loans", s.handleGetBorrowerLoans)
	s.router.Post("/sweeps", s.handleSweep)
}

// requestLogger logs one line per request. 5xx responses are logged at warn level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		args := []any{
			logAttrMethod, r.Method,
			logAttrPath, r.URL.Path,
			logAttrStatus, ww.Status(),
			logAttrDurationMS, time.Since(start).Milliseconds(),
			logAttrRequestID, middleware.GetReqID(r.Context()),
		}

		if ww.Status() >= http.StatusInternalServerError {
			s.logger.Warn(logMsgRequest, args...)
			return
		}

		s.logger.Info(logMsgRequest, args...)
	})
}

// retry runs fn with the configured backoff. Only loanledger.ErrTransactionFailed is retried.
func (s *Server) retry(ctx context.Context, operation string, fn shell.RetryableFunc) error {
	options := s.retryOptions
	if s.retryMetrics != nil {
		options = append(options[:len(options):len(options)], shell.WithMetrics(s.retryMetrics, operation))
	}

	return shell.RetryWithExponentialBackoff(ctx, fn, options...)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.healthCheck != nil {
		if err := s.healthCheck(r.Context()); err != nil {
			s.logger.Warn(logMsgHealthCheckFailed, logAttrError, err.Error())
			s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Error: err.Error()})

			return
		}
	}

	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}
