package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/corpusai/docqa/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must be longer than the generation timeout or answers get cut off.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on the query and API routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives all server metric registrations. Defaults to
	// prometheus.DefaultRegisterer. Tests inject a fresh Registry here.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
	// History is the conversation store backing GET /api/history and query
	// recording. If nil, history is disabled and the endpoint returns 404.
	History store.ConversationStore
	// Stats reports the corpus and configuration snapshot for GET /api/stats.
	// If nil, the endpoint returns only server uptime.
	Stats func() Stats
}

// Stats is the corpus and configuration snapshot returned by GET /api/stats.
type Stats struct {
	// Documents is the number of documents currently indexed.
	Documents int `json:"documents"`
	// Dimension is the embedding vector dimension.
	Dimension int `json:"dimension"`
	// RetrievalK is the number of documents retrieved per query.
	RetrievalK int `json:"retrievalK"`
	// RetrievalMode is the active retrieval variant.
	RetrievalMode string `json:"retrievalMode"`
	// Provider is the LLM backend name (e.g. "ollama").
	Provider string `json:"provider"`
	// Model is the generation model name.
	Model string `json:"model"`
	// EmbeddingModel is the embedding model name.
	EmbeddingModel string `json:"embeddingModel"`
}

// answerer is the interface handleQuery calls to produce an answer.
// *rag.Pipeline satisfies it; tests inject a fake.
type answerer interface {
	// Answer returns the generated answer for the given query text.
	Answer(ctx context.Context, query string) (string, error)
}

// Server is the HTTP server that exposes the question answering pipeline.
type Server struct {
	// answerer produces answers for POST / and POST /query.
	answerer answerer
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// history records answered queries per session; nil disables recording.
	history store.ConversationStore
	// startedAt is set when the server is constructed, for uptime reporting.
	startedAt time.Time
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST / and POST /query.
type queryRequest struct {
	// Text is the user's natural language question.
	Text string `json:"text"`
}

// queryResponse is the JSON response for a successful query.
type queryResponse struct {
	// Result is the generated answer.
	Result string `json:"result"`
}

// errorResponse is the JSON body for all error responses.
type errorResponse struct {
	// Detail is a user-safe description of the failure. The full error
	// is written to the server log, never to the client.
	Detail string `json:"detail"`
}

// statsResponse is the JSON response for GET /api/stats.
type statsResponse struct {
	Stats
	// UptimeSeconds is the time since the server was constructed.
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// historyResponse is the JSON response for GET /api/history.
type historyResponse struct {
	// Session is the session the messages belong to.
	Session string `json:"session"`
	// Messages is the recorded conversation, oldest first.
	Messages []store.Message `json:"messages"`
}
