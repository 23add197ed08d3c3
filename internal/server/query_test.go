package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/corpusai/docqa/internal/rag"
	"github.com/corpusai/docqa/internal/store"
)

// ---------------------------------------------------------------------------
// Fake answerer for query handler tests
// ---------------------------------------------------------------------------

// fakeAnswerer implements the answerer interface for tests.
// It returns a fixed answer or a configurable error.
type fakeAnswerer struct {
	// answer is returned on success.
	answer string
	// err is returned as the error value; nil means success.
	err error
	// lastQuery records the query text passed to Answer.
	lastQuery string
}

func (f *fakeAnswerer) Answer(_ context.Context, query string) (string, error) {
	f.lastQuery = query
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// newTestServer builds a *Server wired with a no-op answerer and a fresh
// metrics registry so tests never touch prometheus.DefaultRegisterer.
func newTestServer() *Server {
	return newQueryTestServer(&fakeAnswerer{answer: "42"})
}

// newQueryTestServer builds a *Server wired with the given answerer fake.
func newQueryTestServer(a answerer) *Server {
	return &Server{
		answerer:  a,
		cfg:       &Config{Port: 8080},
		log:       slog.Default(),
		metrics:   newServerMetrics(prometheus.NewRegistry()),
		startedAt: time.Now(),
	}
}

// postQuery runs handleQuery directly against the given JSON body.
func postQuery(s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handleQuery(w, req)
	return w
}

// ---------------------------------------------------------------------------
// POST /query — validation error paths (no pipeline needed)
// ---------------------------------------------------------------------------

func TestHandleQuery_MissingText(t *testing.T) {
	t.Parallel()

	w := postQuery(newQueryTestServer(&fakeAnswerer{}), `{"other":"field"}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Detail == "" {
		t.Error("expected non-empty detail on 400")
	}
}

func TestHandleQuery_InvalidJSON(t *testing.T) {
	t.Parallel()

	w := postQuery(newQueryTestServer(&fakeAnswerer{}), `not-json`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /query — success and error mapping
// ---------------------------------------------------------------------------

func TestHandleQuery_Success(t *testing.T) {
	t.Parallel()

	fake := &fakeAnswerer{answer: "Paris is the capital of France."}
	w := postQuery(newQueryTestServer(fake), `{"text":"What is the capital of France?"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}

	var resp queryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Result != fake.answer {
		t.Errorf("result: expected %q, got %q", fake.answer, resp.Result)
	}
	if fake.lastQuery != "What is the capital of France?" {
		t.Errorf("query passed to pipeline: got %q", fake.lastQuery)
	}
}

func TestHandleQuery_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid input", fmt.Errorf("wrapped: %w", rag.ErrInvalidInput), http.StatusBadRequest},
		{"generation timeout", fmt.Errorf("wrapped: %w", rag.ErrGenerationTimeout), http.StatusGatewayTimeout},
		{"generation backend", fmt.Errorf("wrapped: %w", rag.ErrGenerationBackend), http.StatusBadGateway},
		{"embedding", fmt.Errorf("wrapped: %w", rag.ErrEmbedding), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w := postQuery(newQueryTestServer(&fakeAnswerer{err: tc.err}), `{"text":"q"}`)

			if w.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d — body: %s", tc.wantStatus, w.Code, w.Body.String())
			}

			var resp errorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Detail == "" {
				t.Error("expected non-empty detail")
			}
			// The raw error text stays in the logs, never in the body.
			if strings.Contains(resp.Detail, "boom") || strings.Contains(resp.Detail, "wrapped") {
				t.Errorf("detail leaked internal error text: %q", resp.Detail)
			}
		})
	}
}

// TestHandleQuery_RecordsHistory verifies that a successful query appends
// both the question and the answer to the session's conversation log.
func TestHandleQuery_RecordsHistory(t *testing.T) {
	t.Parallel()

	hist := openServerTestStore(t)
	s := newQueryTestServer(&fakeAnswerer{answer: "blue"})
	s.history = hist

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"text":"sky color?"}`))
	req.Header.Set("X-Session-ID", "sess-1")
	w := httptest.NewRecorder()
	s.handleQuery(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	msgs, err := hist.Recent(context.Background(), "sess-1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 recorded messages, got %d", len(msgs))
	}
	if msgs[0].Role != store.RoleUser || msgs[0].Content != "sky color?" {
		t.Errorf("first message: got %+v", msgs[0])
	}
	if msgs[1].Role != store.RoleAssistant || msgs[1].Content != "blue" {
		t.Errorf("second message: got %+v", msgs[1])
	}
}

// TestHandleQuery_FailureNotRecorded verifies that failed queries leave no
// trace in the conversation log.
func TestHandleQuery_FailureNotRecorded(t *testing.T) {
	t.Parallel()

	hist := openServerTestStore(t)
	s := newQueryTestServer(&fakeAnswerer{err: rag.ErrGenerationBackend})
	s.history = hist

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"text":"q"}`))
	req.Header.Set("X-Session-ID", "sess-2")
	w := httptest.NewRecorder()
	s.handleQuery(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}

	msgs, err := hist.Recent(context.Background(), "sess-2", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no recorded messages, got %d", len(msgs))
	}
}

// ---------------------------------------------------------------------------
// GET /api/history
// ---------------------------------------------------------------------------

func TestHandleHistory_Disabled(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	w := httptest.NewRecorder()

	s.handleHistory(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 when history disabled, got %d", w.Code)
	}
}

func TestHandleHistory_ReturnsSessionMessages(t *testing.T) {
	t.Parallel()

	hist := openServerTestStore(t)
	ctx := context.Background()
	if err := hist.Append(ctx, "sess-h", store.RoleUser, "question"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := hist.Append(ctx, "sess-h", store.RoleAssistant, "answer"); err != nil {
		t.Fatalf("append: %v", err)
	}

	s := newTestServer()
	s.history = hist

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("X-Session-ID", "sess-h")
	w := httptest.NewRecorder()
	s.handleHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp historyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session != "sess-h" {
		t.Errorf("session: expected sess-h, got %q", resp.Session)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(resp.Messages))
	}
	if resp.Messages[0].Content != "question" || resp.Messages[1].Content != "answer" {
		t.Errorf("messages out of order: %+v", resp.Messages)
	}
}

func TestHandleHistory_InvalidLimit(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.history = openServerTestStore(t)

	req := httptest.NewRequest(http.MethodGet, "/api/history?limit=bogus", nil)
	w := httptest.NewRecorder()
	s.handleHistory(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric limit, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GET /api/stats
// ---------------------------------------------------------------------------

func TestHandleStats_ReturnsSnapshot(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.cfg.Stats = func() Stats {
		return Stats{
			Documents:      12,
			Dimension:      768,
			RetrievalK:     3,
			RetrievalMode:  "top_k",
			Provider:       "ollama",
			Model:          "mistral",
			EmbeddingModel: "nomic-embed-text",
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	s.handleStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp statsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Documents != 12 || resp.Dimension != 768 {
		t.Errorf("corpus snapshot: got %+v", resp.Stats)
	}
	if resp.UptimeSeconds < 0 {
		t.Errorf("uptime must be non-negative, got %v", resp.UptimeSeconds)
	}
}

// ---------------------------------------------------------------------------
// Full server wiring via New
// ---------------------------------------------------------------------------

// TestNew_RoutesAndAuth verifies that New wires the routes, that the query
// endpoints sit behind auth when a key is set, and that health stays open.
func TestNew_RoutesAndAuth(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s, err := New(&fakeAnswerer{answer: "ok"}, &Config{
		APIKey:          "secret",
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)

	srv := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(srv.Close)

	// Health is reachable without a token.
	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/api/health: expected 200, got %d", resp.StatusCode)
	}

	// Query without a token is rejected.
	resp, err = http.Post(srv.URL+"/query", "application/json", strings.NewReader(`{"text":"q"}`))
	if err != nil {
		t.Fatalf("POST /query: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("/query without token: expected 401, got %d", resp.StatusCode)
	}

	// Query with the token succeeds, on both the root and /query routes.
	for _, path := range []string{"/", "/query"} {
		req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(`{"text":"q"}`))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Authorization", "Bearer secret")
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		var body queryResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
		if body.Result != "ok" {
			t.Errorf("%s: expected result ok, got %q", path, body.Result)
		}
	}
}

// openServerTestStore opens an isolated on-disk SQLite store that is removed
// when the test finishes.
func openServerTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/history.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
