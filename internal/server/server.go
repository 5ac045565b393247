// Package server composes the request-protection pipeline around the API
// handlers: request ID, lifecycle logging, rate limiting, payload
// validation and the error boundary, in that order.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bayeshealth/diagnosis-api/internal/apperr"
	"github.com/bayeshealth/diagnosis-api/internal/logging"
	"github.com/bayeshealth/diagnosis-api/internal/ratelimit"
	"github.com/bayeshealth/diagnosis-api/internal/validation"
)

// Options configures the server.
type Options struct {
	Port                 int
	RequestTimeout       time.Duration
	DenialAlertThreshold int
	// AdminKey, when set, gates the history and stats endpoints.
	AdminKey string
}

type Server struct {
	Router *chi.Mux

	opts      Options
	logger    *logging.Logger
	limiter   *ratelimit.Limiter
	validator *validation.Validator

	httpServer *http.Server
}

// New builds the router with the shared middleware stack applied in
// pipeline order. Per-route stages (rate limit class, schema validation)
// are attached by Handle and HandleJSON.
func New(opts Options, logger *logging.Logger, limiter *ratelimit.Limiter, validator *validation.Validator) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	s := &Server{
		opts:      opts,
		logger:    logger,
		limiter:   limiter,
		validator: validator,
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(opts.RequestTimeout))

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "diagnosis-api")
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		s.RespondError(w, req, apperr.NotFound("Resource", req.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		s.RespondError(w, req, apperr.New("MethodNotAllowed",
			fmt.Sprintf("Method %s is not allowed for %s", req.Method, req.URL.Path)).
			WithStatusCode(http.StatusMethodNotAllowed))
	})

	s.Router = r
	return s
}

// Handle registers a handler behind the rate limiter for the given class.
func (s *Server) Handle(method, pattern string, class ratelimit.Class, h HandlerFunc) {
	s.Router.With(s.RateLimitMiddleware(class)).Method(method, pattern, s.Wrap(h))
}

// HandleJSON registers a JSON handler behind the rate limiter and the
// schema validator: RateLimit, Validate, then the handler under the
// error boundary.
func (s *Server) HandleJSON(method, pattern string, class ratelimit.Class, schema validation.Schema, h HandlerFunc) {
	s.Router.
		With(s.RateLimitMiddleware(class)).
		With(s.ValidateMiddleware(schema)).
		Method(method, pattern, s.Wrap(h))
}

// HandleAdmin registers a handler behind the rate limiter and the admin
// key gate.
func (s *Server) HandleAdmin(method, pattern string, class ratelimit.Class, h HandlerFunc) {
	s.Router.
		With(s.RateLimitMiddleware(class)).
		With(s.requireAdmin).
		Method(method, pattern, s.Wrap(h))
}

// requireAdmin validates the bearer token on gated endpoints. A server
// with no admin key configured leaves them open.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AdminKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("Authorization")
		key = strings.TrimPrefix(key, "Bearer ")
		if key == "" {
			s.RespondError(w, r, apperr.Unauthorized("Missing Authorization header"))
			return
		}
		if key != s.opts.AdminKey {
			s.RespondError(w, r, apperr.Forbidden("Invalid API key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.opts.Port),
		Handler: s.Router,
	}
	s.logger.Info("starting server", slog.Int("port", s.opts.Port))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
