// Package server implements the HTTP server that exposes the ragnar answer
// engine via a small JSON API, along with health, readiness, and Prometheus
// metrics endpoints. The server is started by the `ragnar serve` CLI command.
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

	"github.com/ragnar-ai/ragnar/internal/answer"
	"github.com/ragnar-ai/ragnar/internal/logging"
	"github.com/ragnar-ai/ragnar/internal/rag"
)

// New constructs a Server from the provided engine, retriever, and config.
func New(engine *answer.Engine, retriever rag.Retriever, cfg *Config) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
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
		// Generation can take a while on local models.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		asker:    engine,
		searcher: retriever,
		cfg:      cfg,
		log:      log,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(reg),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		log.Warn("server: RAGNAR_API_KEY not set — API authentication is disabled")
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", authMiddleware(cfg.APIKey, rl.middleware(http.HandlerFunc(s.handleAsk))))
	mux.Handle("GET /api/search", authMiddleware(cfg.APIKey, rl.middleware(http.HandlerFunc(s.handleSearch))))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, s.instrument(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the server's root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAsk handles POST /api/ask. It runs the full retrieve-and-generate
// flow and returns the answer with its sources as JSON.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	s.metrics.askInFlight.Inc()
	start := time.Now()
	ans, err := s.asker.Ask(r.Context(), req.Session, req.Question)
	elapsed := time.Since(start)
	s.metrics.askInFlight.Dec()

	if err != nil {
		s.metrics.askRequestsTotal.WithLabelValues("error").Inc()
		s.metrics.askDurationSeconds.WithLabelValues("error").Observe(elapsed.Seconds())
		log.Error("ask failed", slog.Any("error", err))
		http.Error(w, "ask failed", http.StatusBadGateway)
		return
	}
	s.metrics.askRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.askDurationSeconds.WithLabelValues("ok").Observe(elapsed.Seconds())

	resp := askResponse{Answer: ans.Text, Sources: make([]sourceRef, 0, len(ans.Sources))}
	for _, c := range ans.Sources {
		resp.Sources = append(resp.Sources, sourceRef{
			Title:    c.Metadata.Title,
			Category: c.Metadata.Category,
			Section:  c.Metadata.Section,
			Score:    c.Score,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("ask encode error", slog.Any("error", err))
	}
}

// handleSearch handles GET /api/search?q=...&k=N. It returns the raw
// retrieval results without invoking the chat model.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.searcher == nil {
		http.Error(w, "search not configured", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "query parameter q is required", http.StatusBadRequest)
		return
	}
	topK := 3
	if kStr := r.URL.Query().Get("k"); kStr != "" {
		k, err := strconv.Atoi(kStr)
		if err != nil || k <= 0 {
			http.Error(w, "query parameter k must be a positive integer", http.StatusBadRequest)
			return
		}
		topK = k
	}

	chunks, err := s.searcher.Retrieve(r.Context(), query, topK)
	if err != nil {
		log.Error("search failed", slog.Any("error", err))
		http.Error(w, "search failed", http.StatusBadGateway)
		return
	}

	resp := searchResponse{Query: query, Results: make([]sourceRef, 0, len(chunks))}
	for _, c := range chunks {
		resp.Results = append(resp.Results, sourceRef{
			Title:    c.Metadata.Title,
			Category: c.Metadata.Category,
			Section:  c.Metadata.Section,
			Score:    c.Score,
			Text:     c.Text,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("search encode error", slog.Any("error", err))
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
