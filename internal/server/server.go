// Package server exposes the chain over HTTP.
//
// Reads go straight to the store. Submissions take the strategy's lock and
// then wait for the chain's Run loop to apply them, so the server needs
// Chain.Run running alongside it (see ListenAndServe).
package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/roach88/stratagem/internal/host"
	"github.com/roach88/stratagem/internal/lock"
	"github.com/roach88/stratagem/internal/metrics"
)

// Server routes API requests to a chain.
type Server struct {
	chain    *host.Chain
	locker   lock.Locker
	lockTTL  time.Duration
	lockWait time.Duration
	keepers  map[string]bool
	limiter  *rate.Limiter
	validate *validator.Validate
	logger   *slog.Logger
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLocker sets the per-strategy lock. The default is an in-process
// lock.
func WithLocker(l lock.Locker) Option {
	return func(s *Server) { s.locker = l }
}

// WithLockTimeouts sets how long a lock is held at most and how long a
// request waits for it.
func WithLockTimeouts(ttl, wait time.Duration) Option {
	return func(s *Server) {
		s.lockTTL = ttl
		s.lockWait = wait
	}
}

// WithKeepers lets the named senders execute any strategy. Their execute
// calls share one token bucket of r per second with the given burst and
// are relayed as the strategy's manager.
func WithKeepers(keepers []string, r float64, burst int) Option {
	return func(s *Server) {
		s.keepers = make(map[string]bool, len(keepers))
		for _, k := range keepers {
			s.keepers[k] = true
		}
		s.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server for chain.
func New(chain *host.Chain, opts ...Option) *Server {
	s := &Server{
		chain:    chain,
		locker:   lock.NewMemory(),
		lockTTL:  30 * time.Second,
		lockWait: 5 * time.Second,
		validate: validator.New(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/strategies", func(r chi.Router) {
		r.Get("/", s.handleListStrategies)
		r.Get("/{address}/config", s.handleConfig)
		r.Get("/{address}/balances", s.handleBalances)
		r.Post("/{address}/{entry:execute|cancel|clear|withdraw|update}", s.handleSubmit)
	})
	r.Get("/transactions/{id}", s.handleTransaction)
	return r
}

// instrument counts requests by route pattern and status.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(route, strconv.Itoa(status))
		s.logger.Debug("http request", "method", r.Method, "route", route, "status", status)
	})
}
