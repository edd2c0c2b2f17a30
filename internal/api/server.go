package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
	"github.com/JakeFAU/content-orchestrator/internal/config"
	"github.com/JakeFAU/content-orchestrator/internal/content"
	"github.com/JakeFAU/content-orchestrator/internal/logging"
	"github.com/JakeFAU/content-orchestrator/internal/metrics"
	"github.com/JakeFAU/content-orchestrator/internal/pipeline"
	"github.com/JakeFAU/content-orchestrator/internal/scraper"
)

const readyTimeout = 2 * time.Second

// Workflow runs the article generation pipeline.
type Workflow interface {
	Run(ctx context.Context, req content.Request) (pipeline.Outcome, error)
}

// Scraper runs one scrape state machine operation.
type Scraper interface {
	Handle(ctx context.Context, req scraper.Request) (any, error)
}

// ExecutionReader loads execution progress records.
type ExecutionReader interface {
	GetExecution(ctx context.Context, id string) (content.Execution, error)
}

// Deps are the services behind the HTTP handlers. Ready is optional.
type Deps struct {
	Workflow   Workflow
	Scraper    Scraper
	Executions ExecutionReader
	Verifier   TokenVerifier
	Ready      func(context.Context) error
}

// Server wires HTTP handlers to the workflow and scraper services.
type Server struct {
	router   chi.Router
	deps     Deps
	cfg      config.Config
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. When auth is
// enabled and no verifier is supplied, tokens are checked against the
// configured HS256 secret.
func NewServer(cfg config.Config, deps Deps, logger *zap.Logger) *Server {
	logger = logging.Named(logger, "api")
	if cfg.Auth.Enabled && deps.Verifier == nil {
		deps.Verifier = NewHS256Verifier(cfg.Auth.JWTSecret)
	}
	s := &Server{
		deps:     deps,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
	executions := NewExecutionHandler(deps.Executions, logger)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(corsMiddleware)
	r.Use(metrics.Middleware)
	if d := cfg.RequestTimeout(); d > 0 {
		r.Use(timeoutMiddleware(d))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	functions := func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.Auth.Enabled {
				r.Use(authMiddleware(deps.Verifier))
			}
			r.Post("/content-writing-unified", s.writeContent)
			r.Post("/content-writing-workflow", s.writeContent)
		})
		r.Post("/lobstr-scraper", s.scrape)
	}
	r.Route("/functions/v1", functions)
	functions(r)

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(authMiddleware(deps.Verifier))
		}
		r.Get("/executions/{execution_id}", executions.GetExecution)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(r *http.Request, op string, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Wrap(apperr.CodeInvalidInput, op, fmt.Errorf("invalid JSON: %w", err))
	}
	if err := s.validate.Struct(dst); err != nil {
		return apperr.Wrap(apperr.CodeInvalidInput, op, err)
	}
	return nil
}

// errorEnvelope is the body of every failed response.
type errorEnvelope struct {
	Success   bool           `json:"success"`
	Error     string         `json:"error"`
	ErrorType string         `json:"errorType"`
	DebugData map[string]any `json:"debugData,omitempty"`
}

func newErrorEnvelope(err error, debug map[string]any) errorEnvelope {
	env := errorEnvelope{
		Error:     err.Error(),
		ErrorType: string(apperr.CodeOf(err)),
		DebugData: map[string]any{},
	}
	for k, v := range debug {
		env.DebugData[k] = v
	}
	for k, v := range apperr.DetailsOf(err) {
		env.DebugData[k] = v
	}
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Op != "" {
		env.DebugData["op"] = ae.Op
	}
	if len(env.DebugData) == 0 {
		env.DebugData = nil
	}
	return env
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", requestID(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.Stack("stack"))
					writeError(w, apperr.New(apperr.CodeInternal, "http", "internal server error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware permits any origin and answers preflight requests directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			h.Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.HTTPStatus(err), newErrorEnvelope(err, nil))
}
