package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ragnar-ai/ragnar/internal/answer"
	"github.com/ragnar-ai/ragnar/internal/rag"
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
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry is the Prometheus registry metrics are registered against.
	// If nil, a fresh registry is created.
	Registry *prometheus.Registry
}

// asker is the interface handleAsk calls to answer a question.
// *answer.Engine satisfies it; tests inject a fake.
type asker interface {
	Ask(ctx context.Context, session, question string) (*answer.Answer, error)
}

// searcher is the interface handleSearch calls to retrieve chunks.
// rag.Retriever implementations satisfy it; tests inject a fake.
type searcher interface {
	Retrieve(ctx context.Context, query string, topK int) ([]rag.Chunk, error)
}

// Server is the HTTP server that exposes the answer engine.
type Server struct {
	// asker answers questions; set to the engine in production, overridden
	// by a fake in tests.
	asker asker
	// searcher serves raw retrieval requests.
	searcher searcher
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// Session identifies the conversation thread for history purposes.
	// Optional; empty means a stateless question.
	Session string `json:"session,omitempty"`
}

// sourceRef describes one retrieved chunk an answer was grounded on.
type sourceRef struct {
	// Title is the source document title.
	Title string `json:"title"`
	// Category is the source document category, if any.
	Category string `json:"category,omitempty"`
	// Section is the source document section, if any.
	Section string `json:"section,omitempty"`
	// Score is the cosine similarity of the chunk to the question.
	Score float32 `json:"score"`
	// Text is the chunk content. Only populated on /api/search responses.
	Text string `json:"text,omitempty"`
}

// askResponse is the JSON response for POST /api/ask.
type askResponse struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// Sources lists the chunks the answer was grounded on.
	Sources []sourceRef `json:"sources"`
}

// searchResponse is the JSON response for GET /api/search.
type searchResponse struct {
	// Query is the query that was searched.
	Query string `json:"query"`
	// Results lists the retrieved chunks in descending score order.
	Results []sourceRef `json:"results"`
}
