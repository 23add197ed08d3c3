// Package server implements the HTTP server that exposes the document
// question answering pipeline via a small JSON API.
// The server is started by the `docqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corpusai/docqa/internal/logging"
	"github.com/corpusai/docqa/internal/rag"
	"github.com/corpusai/docqa/internal/store"
)

// maxQueryBodyBytes caps the request body size for POST / and POST /query.
const maxQueryBodyBytes = 1 << 20

// defaultSession is used when the client sends no X-Session-ID header.
const defaultSession = "default"

// New constructs a Server from the provided answer pipeline and config.
func New(pipeline answerer, cfg *Config) (*Server, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("server: pipeline must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must be longer than the generation timeout plus
		// any configured retries.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		answerer:  pipeline,
		cfg:       cfg,
		log:       cfg.Logger,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(cfg.MetricsRegistry),
		history:   cfg.History,
		startedAt: time.Now(),
	}

	if cfg.APIKey == "" {
		s.log.Warn("API key not set — authentication is disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("POST /{$}", authMiddleware(cfg.APIKey, http.HandlerFunc(s.handleQuery)))
	mux.Handle("POST /query", authMiddleware(cfg.APIKey, http.HandlerFunc(s.handleQuery)))
	mux.Handle("GET /api/stats", authMiddleware(cfg.APIKey, http.HandlerFunc(s.handleStats)))
	mux.Handle("GET /api/history", authMiddleware(cfg.APIKey, http.HandlerFunc(s.handleHistory)))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	handler := requestLogger(s.log, rl.middleware(s.instrument(mux)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.stopRL()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// ObserveRetrieval records the number of documents retrieved for a query.
// Wired as the pipeline's retrieval observer by the serve command.
func (s *Server) ObserveRetrieval(matches int) {
	s.metrics.retrievalDocuments.Observe(float64(matches))
}

// handleQuery handles POST / and POST /query. It runs the full pipeline for
// the submitted text and returns the generated answer as JSON.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	var req queryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.metrics.queryRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.metrics.queryRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	answer, err := s.answerer.Answer(r.Context(), req.Text)
	outcome := classifyOutcome(err)

	s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		status, detail := mapQueryError(err)
		log.Error("query failed",
			slog.String("outcome", outcome),
			slog.Int("status", status),
			slog.Any("error", err),
		)
		writeError(w, status, detail)
		return
	}

	s.recordHistory(r, req.Text, answer)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(queryResponse{Result: answer}); err != nil {
		log.Error("query encode error", slog.Any("error", err))
	}
}

// recordHistory appends the question and answer to the session's conversation
// log. Failures are logged and never affect the response.
func (s *Server) recordHistory(r *http.Request, query, answer string) {
	if s.history == nil {
		return
	}
	session := r.Header.Get("X-Session-ID")
	if session == "" {
		session = defaultSession
	}

	log := logging.FromContext(r.Context())
	if err := s.history.Append(r.Context(), session, store.RoleUser, query); err != nil {
		log.Warn("history append failed", slog.Any("error", err))
		return
	}
	if err := s.history.Append(r.Context(), session, store.RoleAssistant, answer); err != nil {
		log.Warn("history append failed", slog.Any("error", err))
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleStats handles GET /api/stats. It reports the corpus and
// configuration snapshot plus server uptime.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{UptimeSeconds: time.Since(s.startedAt).Seconds()}
	if s.cfg.Stats != nil {
		resp.Stats = s.cfg.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.FromContext(r.Context()).Error("stats encode error", slog.Any("error", err))
	}
}

// handleHistory handles GET /api/history. The session is selected by the
// X-Session-ID header; the optional "limit" query parameter caps the number
// of messages returned (default 50).
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history is not enabled")
		return
	}

	session := r.Header.Get("X-Session-ID")
	if session == "" {
		session = defaultSession
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, err := s.history.Recent(r.Context(), session, limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("history read failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(historyResponse{Session: session, Messages: msgs}); err != nil {
		logging.FromContext(r.Context()).Error("history encode error", slog.Any("error", err))
	}
}

// mapQueryError translates a pipeline error into an HTTP status and a
// user-safe detail message. The raw error text never reaches the client.
func mapQueryError(err error) (int, string) {
	switch {
	case errors.Is(err, rag.ErrInvalidInput):
		return http.StatusBadRequest, "query text must not be empty"
	case errors.Is(err, rag.ErrGenerationTimeout):
		return http.StatusGatewayTimeout, "answer generation timed out"
	case errors.Is(err, rag.ErrGenerationBackend):
		return http.StatusBadGateway, "answer generation backend is unavailable"
	case errors.Is(err, rag.ErrEmbedding):
		return http.StatusBadGateway, "embedding backend is unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// classifyOutcome maps a pipeline error to the metric outcome label.
func classifyOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, rag.ErrInvalidInput):
		return outcomeInvalid
	case errors.Is(err, rag.ErrGenerationTimeout):
		return outcomeTimeout
	case errors.Is(err, rag.ErrGenerationBackend), errors.Is(err, rag.ErrEmbedding):
		return outcomeBackend
	default:
		return outcomeError
	}
}

// writeError sends a JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Detail: detail})
}
