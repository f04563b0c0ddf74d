// Package server provides the HTTP REST API for ForumLink.
//
// The API exposes the interlinking core to the forum and main-site
// backends: suggestion preview, manual link creation, full strategy runs,
// interlinkable content listing, and registry read views. Authentication
// is bearer-token based via the auth package; with no token store
// configured every request is allowed.
//
// Endpoints:
//
//	POST /interlink/suggestions  - ranked candidates for a forum (no writes)
//	POST /interlink/links        - apply accepted candidates as manual links
//	POST /interlink/strategy     - run the strategy pipeline (preview/commit)
//	GET  /interlink/content      - list interlinkable content from a source
//	GET  /interlink/links        - by-source / by-target registry views
//	GET  /health                 - liveness (no auth)
//	GET  /stats                  - registry, cache, and server counters
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/geofora/forumlink/pkg/auth"
	"github.com/geofora/forumlink/pkg/content"
	"github.com/geofora/forumlink/pkg/forumlink"
	"github.com/geofora/forumlink/pkg/registry"
	"github.com/geofora/forumlink/pkg/relevance"
	"github.com/geofora/forumlink/pkg/strategy"
)

// Errors for HTTP operations.
var (
	ErrServerClosed  = fmt.Errorf("server closed")
	ErrInternalError = fmt.Errorf("internal server error")
)

// Config holds HTTP server configuration.
type Config struct {
	// Address to bind to (default: "0.0.0.0")
	Address string
	// Port to listen on (default: 8080)
	Port int
	// ReadTimeout for requests
	ReadTimeout time.Duration
	// WriteTimeout for responses
	WriteTimeout time.Duration
	// IdleTimeout for keep-alive connections
	IdleTimeout time.Duration
	// MaxRequestSize in bytes (default: 1MB)
	MaxRequestSize int64
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:        "0.0.0.0",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxRequestSize: 1 << 20,
	}
}

// Server is the HTTP API server for ForumLink.
type Server struct {
	config *Config
	svc    *forumlink.Service
	tokens *auth.TokenStore // nil = auth disabled

	httpServer *http.Server
	listener   net.Listener

	closed  atomic.Bool
	started time.Time

	// Metrics
	requestCount   atomic.Int64
	errorCount     atomic.Int64
	activeRequests atomic.Int64
}

// New creates a new HTTP server over a ForumLink service.
//
// tokens may be nil, which disables authentication.
func New(svc *forumlink.Service, tokens *auth.TokenStore, config *Config) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if svc == nil {
		return nil, fmt.Errorf("service required")
	}

	return &Server{
		config: config,
		svc:    svc,
		tokens: tokens,
	}, nil
}

// Start begins listening for HTTP connections.
func (s *Server) Start() error {
	if s.closed.Load() {
		return ErrServerClosed
	}

	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.started = time.Now()

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			fmt.Printf("HTTP server error: %v\n", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Handler builds the routed and middleware-wrapped handler. Exposed for
// httptest use.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Liveness, no auth.
	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/stats", s.withAuth(s.handleStats))
	mux.HandleFunc("/interlink/suggestions", s.withAuth(s.handleSuggestions))
	mux.HandleFunc("/interlink/links", s.withAuth(s.handleLinks))
	mux.HandleFunc("/interlink/strategy", s.withAuth(s.handleStrategy))
	mux.HandleFunc("/interlink/content", s.withAuth(s.handleContent))

	var handler http.Handler = mux
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	handler = s.metricsMiddleware(handler)
	return handler
}

// =============================================================================
// Middleware
// =============================================================================

// withAuth wraps a handler with bearer-token authentication.
func (s *Server) withAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.tokens == nil {
			handler(w, r)
			return
		}

		if _, err := s.tokens.Verify(r.Header.Get("Authorization")); err != nil {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		handler(w, r)
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		// Skip health checks for noise reduction.
		if r.URL.Path != "/health" {
			fmt.Printf("[HTTP] %s %s %d %v\n", r.Method, r.URL.Path, wrapped.status, time.Since(start))
		}
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				fmt.Printf("PANIC: %v\n%s\n", err, buf[:n])

				s.errorCount.Add(1)
				s.writeError(w, http.StatusInternalServerError, ErrInternalError.Error())
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestCount.Add(1)
		s.activeRequests.Add(1)
		defer s.activeRequests.Add(-1)

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}

	stats, err := s.svc.GetStats(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"links": stats.Links,
		"cache": stats.Cache,
		"server": map[string]interface{}{
			"uptime_seconds": time.Since(s.started).Seconds(),
			"requests":       s.requestCount.Load(),
			"errors":         s.errorCount.Load(),
			"active":         s.activeRequests.Load(),
		},
	})
}

// SuggestionsRequest asks for ranked candidates, either for one forum
// (forum_id; pools collected from the content provider) or for explicit
// caller-supplied source/target pools.
type SuggestionsRequest struct {
	ForumID    int64          `json:"forum_id,omitempty"`
	Sources    []content.Item `json:"sources,omitempty"`
	Targets    []content.Item `json:"targets,omitempty"`
	MaxPerItem int            `json:"max_per_item,omitempty"`
}

// SuggestionsResponse carries the ranked candidate list.
type SuggestionsResponse struct {
	Candidates []relevance.Candidate `json:"candidates"`
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req SuggestionsRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var candidates []relevance.Candidate
	var err error
	switch {
	case len(req.Sources) > 0 || len(req.Targets) > 0:
		if req.ForumID != 0 {
			s.writeError(w, http.StatusBadRequest, "forum_id and explicit pools are mutually exclusive")
			return
		}
		candidates, err = s.svc.GetBidirectionalSuggestions(r.Context(), req.Sources, req.Targets, req.MaxPerItem)
	case req.ForumID > 0:
		candidates, err = s.svc.GetForumSuggestions(r.Context(), req.ForumID, req.MaxPerItem)
	default:
		s.writeError(w, http.StatusBadRequest, "forum_id or source/target pools required")
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, SuggestionsResponse{Candidates: candidates})
}

// CreateLinksRequest applies accepted candidates as manual links.
type CreateLinksRequest struct {
	Candidates []relevance.Candidate `json:"candidates"`
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateLinks(w, r)
	case http.MethodGet:
		s.handleListLinks(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "GET or POST required")
	}
}

func (s *Server) handleCreateLinks(w http.ResponseWriter, r *http.Request) {
	var req CreateLinksRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.svc.CreateBidirectionalInterlinks(r.Context(), req.Candidates)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, result)
}

// handleListLinks serves the by-source / by-target registry views:
// GET /interlink/links?view=source&type=question&id=42
func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	ct := content.ContentType(q.Get("type"))
	if !ct.Valid() {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown content type %q", q.Get("type")))
		return
	}
	id, err := strconv.ParseInt(q.Get("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "positive id required")
		return
	}
	ref := content.Ref{Type: ct, ID: id}

	var links []*registry.Interlink
	switch q.Get("view") {
	case "source", "":
		links, err = s.svc.ListLinksBySource(r.Context(), ref)
	case "target":
		links, err = s.svc.ListLinksByTarget(r.Context(), ref)
	default:
		s.writeError(w, http.StatusBadRequest, "view must be source or target")
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"links": links})
}

// StrategyRequest runs the interlinking pipeline for one forum.
type StrategyRequest struct {
	ForumID      int64 `json:"forum_id"`
	PreviewOnly  bool  `json:"preview_only,omitempty"`
	PerItemCap   int   `json:"per_item_cap,omitempty"`
	ContentLimit int   `json:"content_limit,omitempty"`
}

func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req StrategyRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ForumID <= 0 {
		s.writeError(w, http.StatusBadRequest, "forum_id required")
		return
	}

	result, err := s.svc.GenerateInterlinkingStrategy(r.Context(), req.ForumID, strategy.RunOptions{
		PreviewOnly:  req.PreviewOnly,
		PerItemCap:   req.PerItemCap,
		ContentLimit: req.ContentLimit,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleContent lists interlinkable content:
// GET /interlink/content?source=forum&limit=20
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}

	source := content.Source(r.URL.Query().Get("source"))
	limit := parseIntQuery(r, "limit", content.DefaultListLimit)

	items, err := s.svc.GetInterlinkableContent(r.Context(), source, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// =============================================================================
// Helpers
// =============================================================================

// writeDomainError maps core errors onto HTTP statuses:
//
//	invalid argument           -> 400
//	not found                  -> 404
//	content/scoring collaborator down -> 502
//	registry write failure     -> 500
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, content.ErrInvalidArgument), errors.Is(err, registry.ErrInvalidLink):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, content.ErrContentUnavailable), errors.Is(err, relevance.ErrScoringUnavailable):
		s.writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusRequestTimeout, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) readJSON(r *http.Request, v interface{}) error {
	body := io.LimitReader(r.Body, s.config.MaxRequestSize)
	return json.NewDecoder(body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.errorCount.Add(1)
	s.writeJSON(w, status, map[string]interface{}{
		"error":   true,
		"message": message,
		"code":    status,
	})
}

func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		return defaultVal
	}
	return val
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
